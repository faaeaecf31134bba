// Package event defines the unit of replication exchanged between replicas
// and the acknowledgements returned by the inbound endpoints.
package event

import (
	"github.com/google/uuid"

	"replicated-feed/internal/clock"
)

// Message is one post or reply.
//
// The JSON field names are the wire format shared by every replica.
// VectorClock is nil when the author runs under EC, or for malformed input.
type Message struct {
	ProcessID   int               `json:"processId"`
	EventID     string            `json:"evtId"`
	ParentID    string            `json:"parentEvtId,omitempty"`
	Author      string            `json:"author"`
	Text        string            `json:"text"`
	VectorClock clock.VectorClock `json:"vectorClock,omitempty"`
}

// Write is the body of a local write. The replica fills in an omitted
// ProcessID with its own id and an omitted EventID with a fresh one.
type Write struct {
	ProcessID *int   `json:"processId,omitempty"`
	EventID   string `json:"evtId,omitempty"`
	ParentID  string `json:"parentEvtId,omitempty"`
	Author    string `json:"author"`
	Text      string `json:"text"`
}

// Message resolves w for the replica self.
func (w Write) Message(self int) Message {
	pid := self
	if w.ProcessID != nil {
		pid = *w.ProcessID
	}
	return Message{
		ProcessID: pid,
		EventID:   w.EventID,
		ParentID:  w.ParentID,
		Author:    w.Author,
		Text:      w.Text,
	}
}

// NewID returns a fresh globally unique event id.
func NewID() string {
	return uuid.NewString()
}

// IsReply reports whether the message threads under a parent event.
func (m Message) IsReply() bool {
	return m.ParentID != ""
}

// Clone returns a copy that shares no memory with m.
func (m Message) Clone() Message {
	m.VectorClock = m.VectorClock.Copy()
	return m
}

// Preview returns at most n runes of the text, with "..." when truncated.
func (m Message) Preview(n int) string {
	r := []rune(m.Text)
	if len(r) <= n {
		return m.Text
	}
	return string(r[:n]) + "..."
}

// ShortID returns the first four characters of the event id.
func ShortID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[:4]
}

// Ack is the response to a local write or remote share.
//
// VectorClock is only populated for local writes.
type Ack struct {
	Status      string            `json:"status"`
	EventID     string            `json:"evtId"`
	VectorClock clock.VectorClock `json:"vectorClock,omitempty"`
}
