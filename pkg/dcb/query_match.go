package dcb

// MatchableEvent is the minimal shape the in-memory evaluator needs: an
// assigned id, a variant name, and the domain identifiers carried. Both
// Event (pre-persist) and PersistedEvent (post-persist) values can be
// adapted to it; PersistedEvent does so directly.
type MatchableEvent interface {
	EventName() string
	DomainIds() DomainIdSet
	AssignedID() int64
}

// Matches evaluates filter against e using the in-memory semantics that
// every other evaluator (notably the SQL lowering in package postgres) must
// agree with pointwise: Eq passes when the event does not carry the
// identifier at all, not only when it carries it with the matching value.
func Matches(filter StreamFilter, e MatchableEvent) bool {
	switch f := filter.(type) {
	case eventsFilter:
		return containsString(f.names, e.EventName())
	case excludeEventsFilter:
		return !containsString(f.names, e.EventName())
	case eqFilter:
		value, ok := e.DomainIds().Get(f.ident.String())
		if !ok {
			return true
		}
		return value.Equal(f.value)
	case originFilter:
		return e.AssignedID() > f.id
	case andFilter:
		return Matches(f.l, e) && Matches(f.r, e)
	case orFilter:
		return Matches(f.l, e) || Matches(f.r, e)
	default:
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
