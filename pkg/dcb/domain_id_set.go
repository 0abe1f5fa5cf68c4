package dcb

import "sort"

// DomainIdSet is an ordered mapping from Identifier to IdentifierValue.
// Ordering is by identifier name so that two sets with the same contents
// always serialize identically — load-bearing for snapshot keys and SQL
// predicate construction.
type DomainIdSet struct {
	entries map[string]IdentifierValue
}

// NewDomainIdSet builds an empty DomainIdSet.
func NewDomainIdSet() DomainIdSet {
	return DomainIdSet{entries: make(map[string]IdentifierValue)}
}

// With returns a copy of s with ident bound to value.
func (s DomainIdSet) With(ident Identifier, value IdentifierValue) DomainIdSet {
	out := DomainIdSet{entries: make(map[string]IdentifierValue, len(s.entries)+1)}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	out.entries[ident.String()] = value
	return out
}

// Get looks up ident; ok is false if the set does not carry it.
func (s DomainIdSet) Get(ident string) (IdentifierValue, bool) {
	v, ok := s.entries[ident]
	return v, ok
}

// Names returns the set's identifier names in sorted order.
func (s DomainIdSet) Names() []string {
	names := make([]string, 0, len(s.entries))
	for k := range s.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of identifiers bound in s.
func (s DomainIdSet) Len() int { return len(s.entries) }

// DomainIds is a convenience constructor building a DomainIdSet from pairs,
// mirroring the Rust source's domain_ids! macro as a plain variadic call:
// DomainIds(cartID, Text("c1"), productID, Text("p1")).
func DomainIds(pairs ...any) DomainIdSet {
	s := NewDomainIdSet()
	for i := 0; i+1 < len(pairs); i += 2 {
		ident, ok := pairs[i].(Identifier)
		if !ok {
			continue
		}
		value, ok := pairs[i+1].(IdentifierValue)
		if !ok {
			continue
		}
		s = s.With(ident, value)
	}
	return s
}
