package cluster

import (
	"context"
	"fmt"
	"time"

	"replicated-feed/internal/client"
	"replicated-feed/internal/event"
)

// HTTPSender shares messages through each peer's POST /share endpoint.
type HTTPSender struct {
	clients map[int]*client.Client
}

// NewHTTPSender creates one client per peer in members.
func NewHTTPSender(members *Membership, timeout time.Duration) *HTTPSender {
	s := &HTTPSender{clients: make(map[int]*client.Client)}
	for _, p := range members.All() {
		s.clients[p.ID] = client.New(p.Address, timeout)
	}
	return s
}

func (s *HTTPSender) Send(ctx context.Context, peer Peer, m event.Message) error {
	c, ok := s.clients[peer.ID]
	if !ok {
		return fmt.Errorf("no client for process %d", peer.ID)
	}
	if _, err := c.Share(ctx, m); err != nil {
		return fmt.Errorf("share with %s: %w", c.BaseURL(), err)
	}
	return nil
}
