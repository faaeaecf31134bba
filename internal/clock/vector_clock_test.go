package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorClock_Increment(t *testing.T) {
	vc := New(3)

	snap := vc.Increment(1)
	assert.Equal(t, VectorClock{0, 1, 0}, snap)
	assert.Equal(t, VectorClock{0, 1, 0}, vc)

	vc.Increment(1)
	assert.Equal(t, VectorClock{0, 1, 0}, snap, "snapshot must not observe later increments")
	assert.Equal(t, VectorClock{0, 2, 0}, vc)
}

func TestVectorClock_Merge(t *testing.T) {
	vc := VectorClock{3, 1, 0}
	vc.Merge(VectorClock{2, 5, 1})

	assert.Equal(t, VectorClock{3, 5, 1}, vc)
}

func TestVectorClock_Merge_Idempotent(t *testing.T) {
	a := VectorClock{1, 4, 2}
	b := VectorClock{3, 0, 2}

	once := a.Copy()
	once.Merge(b)
	twice := once.Copy()
	twice.Merge(b)

	assert.Equal(t, once, twice)

	older := VectorClock{0, 0, 1}
	twice.Merge(older)
	assert.Equal(t, once, twice, "merging an older vector is a no-op")
}

func TestVectorClock_Merge_Commutative(t *testing.T) {
	pairs := []struct {
		a, b VectorClock
	}{
		{VectorClock{0, 0, 0}, VectorClock{1, 2, 3}},
		{VectorClock{5, 1, 0}, VectorClock{1, 5, 0}},
		{VectorClock{7, 7, 7}, VectorClock{7, 7, 7}},
	}

	for _, p := range pairs {
		ab := p.a.Copy()
		ab.Merge(p.b)
		ba := p.b.Copy()
		ba.Merge(p.a)
		assert.Equal(t, ab, ba, "merge(%v,%v)", p.a, p.b)
	}
}

func TestVectorClock_Monotonic(t *testing.T) {
	vc := New(3)
	prev := vc.Copy()

	ops := []func(){
		func() { vc.Increment(0) },
		func() { vc.Merge(VectorClock{0, 3, 1}) },
		func() { vc.Merge(VectorClock{0, 1, 0}) },
		func() { vc.Increment(0) },
		func() { vc.Merge(VectorClock{9, 0, 2}) },
	}

	for i, op := range ops {
		op()
		for slot := range vc {
			require.GreaterOrEqual(t, vc[slot], prev[slot], "op %d decreased slot %d", i, slot)
		}
		prev = vc.Copy()
	}
}

func TestVectorClock_Merge_LengthMismatch(t *testing.T) {
	vc := VectorClock{1, 1, 1}
	vc.Merge(VectorClock{5})

	assert.Equal(t, VectorClock{5, 1, 1}, vc)
}

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name     string
		vc1      VectorClock
		vc2      VectorClock
		expected ClockRelation
	}{
		{"equal clocks", VectorClock{1, 2, 0}, VectorClock{1, 2, 0}, Equal},
		{"post before reply", VectorClock{1, 0, 0}, VectorClock{1, 1, 0}, Before},
		{"reply after post", VectorClock{1, 1, 0}, VectorClock{1, 0, 0}, After},
		{"concurrent writes", VectorClock{1, 0, 0}, VectorClock{0, 1, 0}, Concurrent},
		{"shorter counts as zero", VectorClock{1}, VectorClock{1, 1}, Before},
		{"empty clocks", New(0), New(0), Equal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.vc1.Compare(tt.vc2))
		})
	}
}

func TestVectorClock_CopyIsIndependent(t *testing.T) {
	vc := VectorClock{2, 3}
	c := vc.Copy()
	c[0] = 9

	assert.Equal(t, uint64(2), vc[0])
	assert.Nil(t, VectorClock(nil).Copy())
}

func TestVectorClock_String(t *testing.T) {
	assert.Equal(t, "[1, 0, 12]", VectorClock{1, 0, 12}.String())
	assert.Equal(t, "[]", New(0).String())
}
