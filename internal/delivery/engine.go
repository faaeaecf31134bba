// Package delivery is the per-replica delivery engine.
//
// Two policies are supported, fixed for the lifetime of an Engine:
//
//   - EC (eventual): every message is applied the moment it arrives.
//     A reply can become visible before its parent; that orphan is the
//     expected inconsistency of the model.
//   - CC (causal): a stamped message is applied only once the readiness
//     predicate holds against the local vector clock. Otherwise it waits in
//     the Buffer, which is drained after every successful delivery.
//
// All mutations of one engine (clock merge, apply, drain) happen under a
// single mutex, so the readiness predicate never observes a clock that is
// half-way through an update.
package delivery

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"replicated-feed/internal/causal"
	"replicated-feed/internal/clock"
	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

// Model selects the delivery policy.
type Model string

const (
	Eventual Model = "EC"
	Causal   Model = "CC"
)

var (
	// ErrUnknownModel is returned by ParseModel for anything but EC or CC.
	ErrUnknownModel = errors.New("unknown consistency model")
	// ErrDuplicateEvent is returned by LocalWrite for an event id that was
	// already applied here.
	ErrDuplicateEvent = errors.New("event already applied")
)

// ParseModel accepts "EC" or "CC" in any case.
func ParseModel(s string) (Model, error) {
	switch Model(strings.ToUpper(strings.TrimSpace(s))) {
	case Eventual:
		return Eventual, nil
	case Causal:
		return Causal, nil
	}
	return "", fmt.Errorf("%w: %q (expected EC or CC)", ErrUnknownModel, s)
}

// Status is what happened to a received message.
type Status int

const (
	Applied Status = iota
	Buffered
	Duplicate
	Dropped
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result describes the outcome of Receive.
type Result struct {
	Status Status
	// Cascaded counts buffered messages delivered by the drain that the
	// received message triggered.
	Cascaded int
}

// previewLen is how much of the text delivery logs include.
const previewLen = 30

// Engine owns one replica's clock, buffer and feed.
type Engine struct {
	mu     sync.Mutex
	self   int
	model  Model
	clock  clock.VectorClock
	buffer *Buffer
	feed   *feed.Feed
	seen   map[string]struct{} // applied event ids
	log    *zap.Logger
}

// NewEngine creates the state of process self in a cluster of n processes.
func NewEngine(self, n int, model Model, log *zap.Logger) (*Engine, error) {
	if n <= 0 {
		return nil, fmt.Errorf("process count must be positive, got %d", n)
	}
	if self < 0 || self >= n {
		return nil, fmt.Errorf("process id %d out of range [0,%d)", self, n)
	}
	if model != Eventual && model != Causal {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		self:   self,
		model:  model,
		clock:  clock.New(n),
		buffer: NewBuffer(),
		feed:   feed.New(),
		seen:   make(map[string]struct{}),
		log:    log.With(zap.Int("process", self), zap.String("model", string(model))),
	}, nil
}

// Self returns the process id this engine represents.
func (e *Engine) Self() int { return e.self }

// Model returns the delivery policy.
func (e *Engine) Model() Model { return e.model }

// LocalWrite applies a message authored at this replica and returns the
// copy to fan out together with the post-write clock.
//
// Under CC the own slot is incremented first and the message is stamped
// with the resulting snapshot. Under EC no stamping happens.
func (e *Engine) LocalWrite(m event.Message) (event.Message, clock.VectorClock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[m.EventID]; ok {
		return event.Message{}, nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, m.EventID)
	}
	m = m.Clone()
	m.ProcessID = e.self
	m.VectorClock = nil
	if e.model == Causal {
		m.VectorClock = e.clock.Increment(e.self)
	}

	e.apply(m)
	return m, e.clock.Copy(), nil
}

// Receive hands a message from a peer to the delivery policy.
//
// Under EC the message is applied on the spot. Under CC the path is:
//
//   - no clock, or one that cannot be checked (wrong length, sender out of
//     range): applied without the causal check and without a merge.
//   - stamped with this process's own id: dropped. Only LocalWrite moves the
//     own slot.
//   - Deliverable: merge, apply, then drain the buffer.
//   - Stale: the sender slot is not ahead of ours, so this write (or a newer
//     one from the same sender) is already here. Dropped.
//   - Missing: something it depends on has not arrived. Buffered.
//
// A message whose event id was already applied or is already buffered is
// reported as Duplicate and changes nothing.
func (e *Engine) Receive(m event.Message) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[m.EventID]; ok || e.buffer.Contains(m.EventID) {
		e.log.Debug("ignoring retransmitted message", zap.String("evt_id", m.EventID))
		return Result{Status: Duplicate}
	}
	m = m.Clone()

	if e.model == Eventual {
		e.apply(m)
		return Result{Status: Applied}
	}

	if m.VectorClock == nil || !causal.WellFormed(m.VectorClock, m.ProcessID, e.clock.Len()) {
		if m.VectorClock != nil {
			e.log.Warn("malformed vector clock, delivering without causal check",
				zap.String("evt_id", m.EventID),
				zap.Int("sender", m.ProcessID),
				zap.String("received", m.VectorClock.String()))
		}
		m.VectorClock = nil
		e.apply(m)
		return Result{Status: Applied}
	}

	// Only LocalWrite advances the own slot. A stamped share claiming to come
	// from this process would move it through Merge instead.
	if m.ProcessID == e.self {
		e.log.Warn("dropping share stamped with own process id",
			zap.String("evt_id", m.EventID),
			zap.String("received", m.VectorClock.String()),
			zap.String("local", e.clock.String()))
		return Result{Status: Dropped}
	}

	switch causal.Check(m.VectorClock, m.ProcessID, e.clock) {
	case causal.Deliverable:
		e.deliver(m)
		return Result{Status: Applied, Cascaded: e.drain()}
	case causal.Stale:
		e.log.Info("dropping stale message",
			zap.String("evt_id", m.EventID),
			zap.String("received", m.VectorClock.String()),
			zap.String("local", e.clock.String()))
		return Result{Status: Dropped}
	default:
		e.log.Info("deferred",
			zap.String("evt_id", m.EventID),
			zap.String("text", m.Preview(previewLen)),
			zap.String("received", m.VectorClock.String()),
			zap.String("local", e.clock.String()))
		e.buffer.Add(m)
		return Result{Status: Buffered}
	}
}

// View returns a read-only copy of the replica state.
func (e *Engine) View() feed.View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := feed.View{
		ProcessID:  e.self,
		Model:      string(e.model),
		Clock:      e.clock.Copy(),
		BufferSize: e.buffer.Len(),
	}
	e.feed.Snapshot(&v)
	return v
}

// Clock returns a copy of the local vector clock.
func (e *Engine) Clock() clock.VectorClock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Copy()
}

// BufferLen returns the number of deferred messages.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Len()
}

// deliver merges a ready message's clock and applies it. Caller holds mu.
func (e *Engine) deliver(m event.Message) {
	e.clock.Merge(m.VectorClock)
	e.apply(m)
}

// drain flushes every buffered message that became ready. Caller holds mu.
//
// One delivery can unlock several buffered messages, and each of those can
// unlock more: P2 holding C [2,1,0] and B [1,1,0] gets A [1,0,0], and after
// A is merged B becomes ready, after B is merged C becomes ready. Buffer.Drain
// keeps re-checking every entry against the updated clock until a whole pass
// delivers nothing, so the chain completes inside the call that received A.
// Entries that turned stale on the way are removed and logged here.
func (e *Engine) drain() int {
	if e.buffer.Len() == 0 {
		return 0
	}
	check := func(m event.Message) causal.Verdict {
		return causal.Check(m.VectorClock, m.ProcessID, e.clock)
	}
	delivered, dropped := e.buffer.Drain(check, e.deliver)
	for _, m := range dropped {
		e.log.Info("dropping buffered message superseded by a newer one",
			zap.String("evt_id", m.EventID),
			zap.String("received", m.VectorClock.String()),
			zap.String("local", e.clock.String()))
	}
	return delivered
}

// apply routes m into the feed. Caller holds mu.
func (e *Engine) apply(m event.Message) {
	e.feed.Apply(m)
	e.seen[m.EventID] = struct{}{}
	e.log.Info("delivered",
		zap.String("author", m.Author),
		zap.Int("sender", m.ProcessID),
		zap.String("evt_id", m.EventID),
		zap.String("text", m.Preview(previewLen)),
		zap.String("clock", e.clock.String()))
}
