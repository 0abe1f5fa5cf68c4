package dcb

import "fmt"

// DomainIdInfo names one identifier in an event schema's union and the SQL
// type its values carry.
type DomainIdInfo struct {
	Ident Identifier
	Type  IdentifierType
}

// VariantInfo describes one variant of an event type: its stable name and
// the identifiers it carries.
type VariantInfo struct {
	Name      string
	DomainIds []Identifier
}

// EventSchema is the static descriptor an event type advertises: its
// variant names, the per-variant identifier list, and the union of every
// identifier appearing in any variant together with its declared type.
//
// Schemas are registered once, typically in an init function or a package
// var, and validated with Validate before use: an identifier name must
// appear with a unique type across the whole union.
type EventSchema struct {
	Variants  []VariantInfo
	DomainIds []DomainIdInfo
}

// Names returns the variant names of the schema, in declared order.
func (s EventSchema) Names() []string {
	names := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		names[i] = v.Name
	}
	return names
}

// Validate checks internal consistency: no duplicate variant names, every
// identifier referenced by a variant appears in the union, and no
// identifier name appears twice with different types.
func (s EventSchema) Validate() error {
	seenVariant := make(map[string]bool, len(s.Variants))
	for _, v := range s.Variants {
		if seenVariant[v.Name] {
			return NewValidationError("EventSchema.Validate", fmt.Errorf("duplicate variant name %q", v.Name))
		}
		seenVariant[v.Name] = true
	}

	unionType := make(map[string]IdentifierType, len(s.DomainIds))
	for _, info := range s.DomainIds {
		name := info.Ident.String()
		if existing, ok := unionType[name]; ok && existing != info.Type {
			return NewValidationError("EventSchema.Validate", fmt.Errorf("identifier %q declared with conflicting types %s and %s", name, existing, info.Type))
		}
		unionType[name] = info.Type
	}

	for _, v := range s.Variants {
		for _, ident := range v.DomainIds {
			if _, ok := unionType[ident.String()]; !ok {
				return NewValidationError("EventSchema.Validate", fmt.Errorf("variant %q references identifier %q not present in schema union", v.Name, ident.String()))
			}
		}
	}
	return nil
}

// HasIdentifier reports whether name appears in the schema's union, and
// returns its declared type if so.
func (s EventSchema) HasIdentifier(name string) (IdentifierType, bool) {
	for _, info := range s.DomainIds {
		if info.Ident.String() == name {
			return info.Type, true
		}
	}
	return 0, false
}

// Event is the contract every domain event type satisfies: a stable variant
// name, the domain identifiers it carries, and access to the static schema
// describing the whole event type. The core never inspects payload shape —
// serialization is the caller's concern.
//
// Schema is an instance method returning the same package-level EventSchema
// value for every instance of a given Go type — the idiomatic stand-in for
// an associated constant on a generic type parameter.
type Event interface {
	// EventName returns this event's stable variant name.
	EventName() string
	// DomainIds returns the identifiers this particular event instance carries.
	DomainIds() DomainIdSet
	// Schema returns the static descriptor for this event's whole type.
	Schema() EventSchema
}

// schemaOf returns E's schema via its zero value. Safe because Schema is
// required to be state-independent.
func schemaOf[E Event]() EventSchema {
	var zero E
	return zero.Schema()
}
