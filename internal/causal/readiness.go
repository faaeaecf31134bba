// Package causal decides whether a received message can be delivered
// without violating causal order.
package causal

import "replicated-feed/internal/clock"

// Verdict classifies a received clock against the local one.
type Verdict int

const (
	// Deliverable means every causal prerequisite is known locally.
	Deliverable Verdict = iota
	// Missing means an earlier write from the sender, or an ancestor the
	// sender had seen, has not been delivered here yet.
	Missing
	// Stale means the sender slot is not ahead of the local one: the
	// message, or a newer one from the same sender, was already delivered.
	Stale
)

func (v Verdict) String() string {
	switch v {
	case Deliverable:
		return "deliverable"
	case Missing:
		return "missing"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// IsReady reports whether a message stamped with received by sender can be
// delivered at a replica whose clock is local:
//
//	received[sender] == local[sender] + 1
//	received[i] <= local[i] for every i != sender
//
// The clocks must have the same length and sender must index into them.
func IsReady(received clock.VectorClock, sender int, local clock.VectorClock) bool {
	return Check(received, sender, local) == Deliverable
}

// Check evaluates the readiness predicate and tells the two not-ready
// cases apart. It has no side effects.
func Check(received clock.VectorClock, sender int, local clock.VectorClock) Verdict {
	if received[sender] <= local[sender] {
		return Stale
	}
	if received[sender] != local[sender]+1 {
		return Missing
	}
	for i := range local {
		if i != sender && received[i] > local[i] {
			return Missing
		}
	}
	return Deliverable
}

// WellFormed reports whether received can be checked against a local clock
// of length n for the given sender.
func WellFormed(received clock.VectorClock, sender, n int) bool {
	return len(received) == n && sender >= 0 && sender < n
}
