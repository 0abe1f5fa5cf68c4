package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"

	"go-dcb/pkg/dcb"
)

// Codec serializes and deserializes event payloads. Spec-wise this is an
// external collaborator (spec.md §1 explicitly keeps concrete serialization
// codecs out of the core's scope) — Store depends only on this interface,
// never on JSONCodec directly.
type Codec interface {
	Encode(event dcb.Event) ([]byte, error)
	Decode(eventType string, payload []byte) (dcb.Event, error)
}

// JSONCodec is the default Codec: encoding/json over a registry of event
// names to concrete Go types, the same role the teacher's domain examples
// give a hand-rolled switch statement but generalized into one reusable
// registry.
type JSONCodec struct {
	types map[string]reflect.Type
}

// NewJSONCodec builds an empty JSONCodec; call Register for each event
// variant name before using it.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{types: make(map[string]reflect.Type)}
}

// Register associates eventType with the concrete Go type of zeroValue, so
// Decode knows what to unmarshal a given event_type's payload into.
func (c *JSONCodec) Register(eventType string, zeroValue dcb.Event) {
	c.types[eventType] = reflect.TypeOf(zeroValue)
}

// Encode marshals event as JSON.
func (c *JSONCodec) Encode(event dcb.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, dcb.NewDeserializationError("JSONCodec.Encode", err)
	}
	return data, nil
}

// Decode unmarshals payload into the Go type registered for eventType.
func (c *JSONCodec) Decode(eventType string, payload []byte) (dcb.Event, error) {
	typ, ok := c.types[eventType]
	if !ok {
		return nil, dcb.NewDeserializationError("JSONCodec.Decode", fmt.Errorf("no type registered for event type %q", eventType))
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(payload, ptr.Interface()); err != nil {
		return nil, dcb.NewDeserializationError("JSONCodec.Decode", err)
	}
	event, ok := ptr.Elem().Interface().(dcb.Event)
	if !ok {
		return nil, dcb.NewDeserializationError("JSONCodec.Decode", fmt.Errorf("registered type for %q does not implement dcb.Event", eventType))
	}
	return event, nil
}
