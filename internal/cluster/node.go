// Package cluster wires a replica's delivery engine to its peers: static
// membership, the fanout of local writes and the two entry points a
// transport calls.
package cluster

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"replicated-feed/internal/delivery"
	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

var (
	// ErrForeignWrite is returned when a local write names another process.
	ErrForeignWrite = errors.New("local write for another process")
	// ErrMissingEventID is returned when a shared message has no event id.
	ErrMissingEventID = errors.New("missing event id")
)

// StatusOK is the status field of every successful ack.
const StatusOK = "ok"

// Node is one replica.
type Node struct {
	engine  *delivery.Engine
	members *Membership
	fanout  *Fanout
	log     *zap.Logger
}

func NewNode(engine *delivery.Engine, members *Membership, fanout *Fanout, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		engine:  engine,
		members: members,
		fanout:  fanout,
		log:     log.With(zap.Int("process", engine.Self())),
	}
}

// ID returns the local process id.
func (n *Node) ID() int { return n.engine.Self() }

// Members returns the static membership.
func (n *Node) Members() *Membership { return n.members }

// Post performs a local write and schedules it for every peer. An empty
// event id is generated.
func (n *Node) Post(m event.Message) (event.Ack, error) {
	if m.ProcessID != n.ID() {
		return event.Ack{}, fmt.Errorf("%w: processId %d, this is process %d", ErrForeignWrite, m.ProcessID, n.ID())
	}
	if m.EventID == "" {
		m.EventID = event.NewID()
	}

	out, vc, err := n.engine.LocalWrite(m)
	if err != nil {
		return event.Ack{}, err
	}
	n.fanout.Broadcast(out)

	return event.Ack{Status: StatusOK, EventID: out.EventID, VectorClock: vc}, nil
}

// Share hands a message from a peer to the delivery engine. A successful
// ack does not mean the message is visible yet.
func (n *Node) Share(m event.Message) (event.Ack, delivery.Result, error) {
	if m.EventID == "" {
		return event.Ack{}, delivery.Result{}, ErrMissingEventID
	}
	res := n.engine.Receive(m)
	if res.Cascaded > 0 {
		n.log.Info("buffer drained",
			zap.String("evt_id", m.EventID),
			zap.Int("cascaded", res.Cascaded),
			zap.Int("buffered", n.engine.BufferLen()))
	}
	return event.Ack{Status: StatusOK, EventID: m.EventID}, res, nil
}

// View returns the replica's presentation snapshot.
func (n *Node) View() feed.View {
	return n.engine.View()
}
