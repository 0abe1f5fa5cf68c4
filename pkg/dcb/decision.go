package dcb

import (
	"context"
	"encoding/json"
)

// DomainState is what a state payload must implement to be foldable: a
// stable name used for snapshot keys, the StreamQuery selecting the events
// relevant to it, and in-place application of one event of its associated
// type. S is the concrete payload struct; E is its associated event type.
type DomainState[E Event] interface {
	StateName() string
	StateQuery() StreamQuery[E]
	Mutate(event E)
}

// StatePart wraps a DomainState payload with the bookkeeping a fold needs:
// the highest event id folded so far, and how many events have been
// applied (the snapshot-threshold heuristic). Payload is exported so a
// Decision can read it after the state store has populated it in place.
type StatePart[S DomainState[E], E Event] struct {
	Version            int64
	AppliedEventsCount int64
	Payload            S
}

// NewStatePart wraps initial as a fresh, unfolded StatePart.
func NewStatePart[S DomainState[E], E Event](initial S) *StatePart[S, E] {
	return &StatePart[S, E]{Payload: initial}
}

// queryPart returns the state's query rebased via ChangeOrigin(Version), so
// re-hydration after a snapshot load starts from the snapshotted cursor.
func (p *StatePart[S, E]) queryPart() StreamQuery[E] {
	return p.Payload.StateQuery().ChangeOrigin(p.Version)
}

func (p *StatePart[S, E]) queryFilter() StreamFilter { return p.queryPart().Filter() }

// QueryFilter returns the part's rebased query filter, exported so a
// Snapshotter living outside this package can key a snapshot lookup.
func (p *StatePart[S, E]) QueryFilter() StreamFilter { return p.queryFilter() }

// PartVersion returns the highest event id folded into this part so far.
func (p *StatePart[S, E]) PartVersion() int64 { return p.Version }

// PartAppliedEventsCount returns how many events have been applied since
// the part was last hydrated from a snapshot — the threshold heuristic a
// Snapshotter consults before writing a fresh snapshot.
func (p *StatePart[S, E]) PartAppliedEventsCount() int64 { return p.AppliedEventsCount }

// PartName returns the wrapped payload's StateName.
func (p *StatePart[S, E]) PartName() string { return p.Payload.StateName() }

func (p *StatePart[S, E]) matches(e MatchableEvent) bool {
	return Matches(p.queryFilter(), e)
}

// mutate applies pe to the wrapped payload if its underlying Event is of
// type E, advancing Version and AppliedEventsCount. Events that don't match
// this part's concrete event type are silently skipped — they arrived
// through a wider union query and belong to a sibling part.
func (p *StatePart[S, E]) mutate(pe PersistedEvent) bool {
	typed, ok := pe.Event.(E)
	if !ok {
		return false
	}
	p.Payload.Mutate(typed)
	p.Version = pe.ID
	p.AppliedEventsCount++
	return true
}

// LoadSnapshotPayload unmarshals data into the part's payload and sets its
// Version to version, implementing the write side of a Snapshotter's load.
func (p *StatePart[S, E]) LoadSnapshotPayload(data []byte, version int64) error {
	if err := json.Unmarshal(data, &p.Payload); err != nil {
		return NewDeserializationError("StatePart.LoadSnapshotPayload", err)
	}
	p.Version = version
	return nil
}

// MarshalSnapshotPayload serializes the part's current payload for a
// Snapshotter to persist.
func (p *StatePart[S, E]) MarshalSnapshotPayload() ([]byte, error) {
	data, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, NewDeserializationError("StatePart.MarshalSnapshotPayload", err)
	}
	return data, nil
}

// StatePartHandle is the type-erased, exported view a StateSet holds and a
// Snapshotter operates on, letting parts of different concrete (S, E)
// pairs compose in one ordered slice — the Go stand-in for variadic
// tuple-trait composition. It deliberately exposes no way to reach the
// wrapped payload directly; only name/query/version/payload-bytes
// bookkeeping, which is all a generic Snapshotter needs.
type StatePartHandle interface {
	QueryFilter() StreamFilter
	PartVersion() int64
	PartAppliedEventsCount() int64
	PartName() string
	matches(e MatchableEvent) bool
	mutate(pe PersistedEvent) bool
	LoadSnapshotPayload(data []byte, version int64) error
	MarshalSnapshotPayload() ([]byte, error)
}

// StateSet is an ordered collection of heterogeneous StatePart pointers
// composing into one MultiState. Build one per Decision, adding each part
// via AddPart, then read each part's Payload field after the state store
// has populated it.
type StateSet struct {
	parts []StatePartHandle
}

// NewStateSet builds an empty StateSet.
func NewStateSet() *StateSet { return &StateSet{} }

// AddPart registers part as one of the composite's sub-states.
func AddPart[S DomainState[E], E Event](set *StateSet, part *StatePart[S, E]) {
	set.parts = append(set.parts, part)
}

// QueryAll returns the OR of every sub-part's (rebased) query filter — the
// composite query the state store streams from, and the default validation
// query a Decision falls back to when it doesn't provide its own.
func (s *StateSet) QueryAll() StreamFilter {
	if len(s.parts) == 0 {
		return Events()
	}
	filter := s.parts[0].QueryFilter()
	for _, p := range s.parts[1:] {
		filter = orFilter{l: filter, r: p.QueryFilter()}
	}
	return filter
}

// Version returns the max version across sub-parts.
func (s *StateSet) Version() int64 {
	var v int64
	for _, p := range s.parts {
		if p.PartVersion() > v {
			v = p.PartVersion()
		}
	}
	return v
}

// MutateAll routes pe to every sub-part whose query matches it, folding it
// in via the sub-part's own concrete Mutate. Events matching none of the
// sub-parts (selected through the union query but belonging to another
// part's variant set) are silently skipped.
func (s *StateSet) MutateAll(pe PersistedEvent) {
	for _, p := range s.parts {
		if p.matches(pe) {
			p.mutate(pe)
		}
	}
}

// Decision is one unit of business logic: which state it needs, the events
// it produces from that state, and (optionally) a validation query narrower
// than its load query.
type Decision interface {
	// States declares (and, via side effects on the returned StateSet's
	// parts, receives) the composite state this decision needs loaded.
	States() *StateSet
	// Process inspects the now-folded state (read from the StatePart
	// payloads returned by States) and returns the events to append, or a
	// domain error rejecting the command.
	Process() ([]Event, error)
}

// ValidatingDecision is implemented by decisions that narrow their
// validation query relative to their load query — the canonical example:
// a withdrawal's validation query excludes deposits, since a concurrent
// deposit cannot invalidate a withdrawal that already cleared its balance
// check.
type ValidatingDecision interface {
	Decision
	ValidationQuery() StreamFilter
}

// DecisionMaker orchestrates load -> process -> persist for a Decision
// against a StateStore.
type DecisionMaker struct {
	Store StateStore
}

// NewDecisionMaker builds a DecisionMaker backed by store.
func NewDecisionMaker(store StateStore) *DecisionMaker {
	return &DecisionMaker{Store: store}
}

// Make runs one decision to completion: load its state, invoke Process,
// and persist the resulting events under the decision's validation query
// (or the load query's default). Domain errors, concurrency conflicts, and
// backend errors are all returned distinctly via the error taxonomy.
func (dm *DecisionMaker) Make(ctx context.Context, d Decision) ([]PersistedEvent, error) {
	set := d.States()
	version, err := dm.Store.Load(ctx, set)
	if err != nil {
		return nil, err
	}

	events, err := d.Process()
	if err != nil {
		if IsDomainError(err) {
			return nil, err
		}
		return nil, NewDomainError("DecisionMaker.Make", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	validationFilter := set.QueryAll()
	if vd, ok := d.(ValidatingDecision); ok {
		validationFilter = vd.ValidationQuery()
	}

	return dm.Store.Persist(ctx, set, version, events, validationFilter)
}
