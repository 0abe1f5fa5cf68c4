package dcb

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentifierType names the three SQL-representable kinds an identifier's
// values may take. It drives both the fan-out column's SQL type and which
// IdentifierValue constructor a schema expects callers to use.
type IdentifierType int

const (
	// IdentifierTypeText maps to a TEXT column.
	IdentifierTypeText IdentifierType = iota
	// IdentifierTypeInt64 maps to a BIGINT column.
	IdentifierTypeInt64
	// IdentifierTypeUUID maps to a UUID column.
	IdentifierTypeUUID
)

func (t IdentifierType) String() string {
	switch t {
	case IdentifierTypeText:
		return "text"
	case IdentifierTypeInt64:
		return "int64"
	case IdentifierTypeUUID:
		return "uuid"
	default:
		return fmt.Sprintf("IdentifierType(%d)", int(t))
	}
}

// IdentifierValue is a tagged value of one of three kinds. Equality is
// typed: a text "1" and an int64 1 are distinct values even though they
// print the same.
type IdentifierValue struct {
	kind IdentifierType
	text string
	i64  int64
	uid  uuid.UUID
}

// Text builds a text-kind IdentifierValue.
func Text(v string) IdentifierValue { return IdentifierValue{kind: IdentifierTypeText, text: v} }

// Int64 builds an int64-kind IdentifierValue.
func Int64(v int64) IdentifierValue { return IdentifierValue{kind: IdentifierTypeInt64, i64: v} }

// UUID builds a UUID-kind IdentifierValue.
func UUID(v uuid.UUID) IdentifierValue { return IdentifierValue{kind: IdentifierTypeUUID, uid: v} }

// Kind returns which of the three representations v holds.
func (v IdentifierValue) Kind() IdentifierType { return v.kind }

// AsText returns the text payload; ok is false if v is not text-kind.
func (v IdentifierValue) AsText() (string, bool) {
	return v.text, v.kind == IdentifierTypeText
}

// AsInt64 returns the int64 payload; ok is false if v is not int64-kind.
func (v IdentifierValue) AsInt64() (int64, bool) {
	return v.i64, v.kind == IdentifierTypeInt64
}

// AsUUID returns the UUID payload; ok is false if v is not UUID-kind.
func (v IdentifierValue) AsUUID() (uuid.UUID, bool) {
	return v.uid, v.kind == IdentifierTypeUUID
}

// Equal reports typed equality: different kinds are never equal, even when
// their string forms coincide.
func (v IdentifierValue) Equal(other IdentifierValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case IdentifierTypeText:
		return v.text == other.text
	case IdentifierTypeInt64:
		return v.i64 == other.i64
	case IdentifierTypeUUID:
		return v.uid == other.uid
	default:
		return false
	}
}

// String renders the underlying value, used for canonical query strings and
// debug output. It does not encode the kind; callers needing a type-safe
// round trip should use Kind()+As*.
func (v IdentifierValue) String() string {
	switch v.kind {
	case IdentifierTypeText:
		return v.text
	case IdentifierTypeInt64:
		return fmt.Sprintf("%d", v.i64)
	case IdentifierTypeUUID:
		return v.uid.String()
	default:
		return ""
	}
}

// DriverValue returns the Go value a SQL driver should bind for this
// IdentifierValue — the text, int64, or uuid.UUID payload, matching
// whichever kind it holds.
func (v IdentifierValue) DriverValue() any {
	switch v.kind {
	case IdentifierTypeText:
		return v.text
	case IdentifierTypeInt64:
		return v.i64
	case IdentifierTypeUUID:
		return v.uid
	default:
		return nil
	}
}
