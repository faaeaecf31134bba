package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"replicated-feed/internal/event"
)

// Sender delivers one message to one peer.
type Sender interface {
	Send(ctx context.Context, peer Peer, m event.Message) error
}

// Fanout sends every local write to all other processes.
//
// Each destination is handled by its own scheduled task: a slow or dead
// peer never holds up the others or the local write. There is no retry; a
// failed send is logged and the message is lost for that peer.
type Fanout struct {
	members *Membership
	sender  Sender
	sched   Scheduler
	delays  map[int]time.Duration // per destination
	timeout time.Duration
	log     *zap.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithDelays delays sends to the given destinations.
func WithDelays(delays map[int]time.Duration) FanoutOption {
	return func(f *Fanout) {
		for id, d := range delays {
			f.delays[id] = d
		}
	}
}

// WithSendTimeout bounds each send.
func WithSendTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) { f.timeout = d }
}

// NewFanout returns a fanout over members' other processes.
func NewFanout(members *Membership, sender Sender, sched Scheduler, log *zap.Logger, opts ...FanoutOption) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fanout{
		members: members,
		sender:  sender,
		sched:   sched,
		delays:  make(map[int]time.Duration),
		timeout: 5 * time.Second,
		log:     log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Broadcast schedules m for every peer and returns immediately.
func (f *Fanout) Broadcast(m event.Message) {
	for _, p := range f.members.Others() {
		msg := m.Clone()
		delay := f.delays[p.ID]
		if delay > 0 {
			f.log.Info("delaying share",
				zap.Int("dest", p.ID),
				zap.String("evt_id", msg.EventID),
				zap.Duration("delay", delay))
		}
		f.sched.After(delay, func() { f.send(p, msg) })
	}
}

func (f *Fanout) send(p Peer, m event.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.sender.Send(ctx, p, m); err != nil {
		f.log.Warn("share failed",
			zap.Int("dest", p.ID),
			zap.String("address", p.Address),
			zap.String("evt_id", m.EventID),
			zap.Error(err))
		return
	}
	f.log.Debug("shared", zap.Int("dest", p.ID), zap.String("evt_id", m.EventID))
}
