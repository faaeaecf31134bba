package delivery

import (
	"replicated-feed/internal/causal"
	"replicated-feed/internal/event"
)

// Buffer holds messages whose causal prerequisites have not arrived yet.
//
// Entries have no order or priority and never expire. It is owned by one
// Engine and is not safe for concurrent use on its own.
type Buffer struct {
	pending []event.Message
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends m to the pending set.
func (b *Buffer) Add(m event.Message) {
	b.pending = append(b.pending, m)
}

// Len returns the number of pending messages.
func (b *Buffer) Len() int {
	return len(b.pending)
}

// Contains reports whether a message with the given event id is pending.
func (b *Buffer) Contains(eventID string) bool {
	for _, m := range b.pending {
		if m.EventID == eventID {
			return true
		}
	}
	return false
}

// Pending returns a copy of the buffered messages.
func (b *Buffer) Pending() []event.Message {
	out := make([]event.Message, len(b.pending))
	for i, m := range b.pending {
		out[i] = m.Clone()
	}
	return out
}

// Drain re-evaluates every pending message until a full pass delivers
// nothing.
//
// check is evaluated against the current local state on every pass, so a
// delivery made earlier in the same call can unlock later entries.
// Deliverable entries are removed and passed to deliver; Stale entries are
// removed and returned; Missing entries stay.
func (b *Buffer) Drain(check func(event.Message) causal.Verdict, deliver func(event.Message)) (delivered int, dropped []event.Message) {
	for progress := true; progress && len(b.pending) > 0; {
		progress = false
		remaining := make([]event.Message, 0, len(b.pending))

		for _, m := range b.pending {
			switch check(m) {
			case causal.Deliverable:
				deliver(m)
				delivered++
				progress = true
			case causal.Stale:
				dropped = append(dropped, m)
			default:
				remaining = append(remaining, m)
			}
		}
		b.pending = remaining
	}
	return delivered, dropped
}
