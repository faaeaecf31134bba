// Package clock implements the fixed-size vector clock every replica keeps.
//
// A vector clock has one counter per participating process, indexed by the
// process id (0..N-1). Slot i counts how many writes of process i the owner
// has observed.
//
//	P0 writes A:          [1, 0, 0]
//	P1 receives A:        [1, 0, 0]   (merge)
//	P1 writes reply B:    [1, 1, 0]   (increment own slot)
//	P2 receives B first:  B says "P0 slot 1" but P2 has "P0 slot 0",
//	                      so P2 is missing A and must wait.
//
// The owner is the only one allowed to increment its own slot. Every other
// slot only moves through Merge. Values are never decremented.
package clock

import (
	"strconv"
	"strings"
)

// ClockRelation represents the causal relationship between two vector clocks.
type ClockRelation int

const (
	Before     ClockRelation = iota // self happened-before other
	After                           // self happened-after other
	Equal                           // identical
	Concurrent                      // neither dominates
)

func (r ClockRelation) String() string {
	switch r {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VectorClock holds one logical counter per process.
//
// A nil VectorClock means "no clock attached" on a message.
// It is not safe for concurrent use; the owning engine serialises access.
type VectorClock []uint64

// New returns a zeroed clock for n processes.
func New(n int) VectorClock {
	if n < 0 {
		n = 0
	}
	return make(VectorClock, n)
}

// Len returns the number of slots.
func (vc VectorClock) Len() int {
	return len(vc)
}

// Increment bumps the counter for self and returns a snapshot of the
// resulting vector. Later mutations of vc are not visible in the snapshot.
func (vc VectorClock) Increment(self int) VectorClock {
	vc[self]++
	return vc.Copy()
}

// Merge sets every slot to max(vc[i], other[i]).
//
// Only the common prefix is touched when the lengths differ; callers are
// expected to reject such clocks before merging.
func (vc VectorClock) Merge(other VectorClock) {
	n := min(len(vc), len(other))
	for i := 0; i < n; i++ {
		if other[i] > vc[i] {
			vc[i] = other[i]
		}
	}
}

// Copy returns a deep copy. Copy of a nil clock is nil.
func (vc VectorClock) Copy() VectorClock {
	if vc == nil {
		return nil
	}
	c := make(VectorClock, len(vc))
	copy(c, vc)
	return c
}

// Equal reports whether both clocks have the same length and slots.
func (vc VectorClock) Equal(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for i := range vc {
		if vc[i] != other[i] {
			return false
		}
	}
	return true
}

// Compare returns the causal relationship of vc relative to other.
// Missing slots on the shorter side count as zero.
func (vc VectorClock) Compare(other VectorClock) ClockRelation {
	vcDominates := false    // vc has at least one counter > other
	otherDominates := false // other has at least one counter > vc

	n := max(len(vc), len(other))
	for i := 0; i < n; i++ {
		a, b := vc.at(i), other.at(i)
		if a > b {
			vcDominates = true
		} else if a < b {
			otherDominates = true
		}
	}

	switch {
	case !vcDominates && !otherDominates:
		return Equal
	case vcDominates && !otherDominates:
		return After
	case !vcDominates && otherDominates:
		return Before
	default:
		return Concurrent
	}
}

// HappenedBefore is shorthand for vc.Compare(other) == Before.
func (vc VectorClock) HappenedBefore(other VectorClock) bool {
	return vc.Compare(other) == Before
}

// String renders the clock as "[1, 0, 2]".
func (vc VectorClock) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vc {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(v, 10))
	}
	b.WriteByte(']')
	return b.String()
}

func (vc VectorClock) at(i int) uint64 {
	if i < len(vc) {
		return vc[i]
	}
	return 0
}
