package dcb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSnapshotIDStability covers seed scenario S6: two StateQuery instances
// with identical names and structurally identical filter trees produce the
// same snapshot UUID; different trees produce different UUIDs.
func TestSnapshotIDStability(t *testing.T) {
	q1 := NewQuery[cartEvent](MustWithEq[cartEvent](cartID, Text("c1")))
	q2 := NewQuery[cartEvent](MustWithEq[cartEvent](cartID, Text("c1")))
	q3 := NewQuery[cartEvent](MustWithEq[cartEvent](cartID, Text("c2")))

	id1 := SnapshotID("cart", q1.Filter())
	id2 := SnapshotID("cart", q2.Filter())
	id3 := SnapshotID("cart", q3.Filter())

	assert.Equal(t, id1, id2, "structurally identical filters must produce identical snapshot ids")
	assert.NotEqual(t, id1, id3, "structurally different filters must produce different snapshot ids")
}

func TestSnapshotIDVariesByStateName(t *testing.T) {
	q := NewQuery[cartEvent](MustWithEq[cartEvent](cartID, Text("c1")))
	idA := SnapshotID("cart-a", q.Filter())
	idB := SnapshotID("cart-b", q.Filter())
	assert.NotEqual(t, idA, idB)
}

func TestCanonicalStringOrderIndependent(t *testing.T) {
	left := And(Eq(cartID, Text("c1")), Eq(productID, Text("p1")))
	right := And(Eq(productID, Text("p1")), Eq(cartID, Text("c1")))
	assert.Equal(t, CanonicalQueryString(left), CanonicalQueryString(right))
}
