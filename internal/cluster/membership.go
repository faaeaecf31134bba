package cluster

import "fmt"

// Peer is one replica. ID is its position in the peer list and its slot in
// every vector clock.
type Peer struct {
	ID      int    `json:"id"`
	Address string `json:"address"` // base URL
}

// Membership is the static process list fixed at bootstrap.
type Membership struct {
	self  int
	peers []Peer
}

// NewMembership builds the membership for process self from the ordered
// address list, self included.
func NewMembership(self int, addrs []string) (*Membership, error) {
	if self < 0 || self >= len(addrs) {
		return nil, fmt.Errorf("process %d not in membership of %d", self, len(addrs))
	}
	peers := make([]Peer, len(addrs))
	for i, a := range addrs {
		peers[i] = Peer{ID: i, Address: a}
	}
	return &Membership{self: self, peers: peers}, nil
}

// N returns the number of processes.
func (m *Membership) N() int {
	return len(m.peers)
}

// Self returns the local process.
func (m *Membership) Self() Peer {
	return m.peers[m.self]
}

// Get returns the process with the given id.
func (m *Membership) Get(id int) (Peer, bool) {
	if id < 0 || id >= len(m.peers) {
		return Peer{}, false
	}
	return m.peers[id], true
}

// All returns a copy of every process, self included.
func (m *Membership) All() []Peer {
	return append([]Peer(nil), m.peers...)
}

// Others returns every process except self, in id order.
func (m *Membership) Others() []Peer {
	out := make([]Peer, 0, len(m.peers)-1)
	for _, p := range m.peers {
		if p.ID != m.self {
			out = append(out, p)
		}
	}
	return out
}
