// Package it runs whole replica groups in one process for end-to-end
// scenarios.
package it

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"time"

	"go.uber.org/zap"

	"replicated-feed/internal/api"
	"replicated-feed/internal/clock"
	"replicated-feed/internal/cluster"
	"replicated-feed/internal/delivery"
	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

// Delays maps source process to per-destination send delays.
type Delays map[int]map[int]time.Duration

// Cluster is a group of nodes linked in memory. Nothing moves between nodes
// until the scheduler is advanced.
type Cluster struct {
	nodes []*cluster.Node
	sched *cluster.ManualScheduler
}

// loopback delivers a share straight into the destination node.
type loopback struct {
	c *Cluster
}

func (l loopback) Send(_ context.Context, p cluster.Peer, m event.Message) error {
	if p.ID < 0 || p.ID >= len(l.c.nodes) {
		return fmt.Errorf("no node %d", p.ID)
	}
	_, _, err := l.c.nodes[p.ID].Share(m)
	return err
}

// NewCluster builds n nodes running model.
func NewCluster(n int, model delivery.Model, delays Delays, log *zap.Logger) (*Cluster, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cluster{sched: cluster.NewManualScheduler()}
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("mem://p%d", i)
	}
	for i := 0; i < n; i++ {
		node, err := buildNode(i, addrs, model, loopback{c}, c.sched, delays[i], log)
		if err != nil {
			return nil, err
		}
		c.nodes = append(c.nodes, node)
	}
	return c, nil
}

// Node returns process i.
func (c *Cluster) Node(i int) *cluster.Node {
	return c.nodes[i]
}

// Scheduler exposes the logical clock driving every share.
func (c *Cluster) Scheduler() *cluster.ManualScheduler {
	return c.sched
}

// Advance moves logical time forward and runs the shares that became due.
func (c *Cluster) Advance(d time.Duration) int {
	return c.sched.Advance(d)
}

// Settle runs every pending share.
func (c *Cluster) Settle() int {
	return c.sched.RunAll()
}

// Views returns a snapshot of every node.
func (c *Cluster) Views() []feed.View {
	out := make([]feed.View, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.View()
	}
	return out
}

// HTTPCluster is a group of nodes serving the real API on loopback
// listeners and sharing through HTTP with wall-clock delays.
type HTTPCluster struct {
	Nodes   []*cluster.Node
	URLs    []string
	servers []*httptest.Server
}

// NewHTTPCluster starts n HTTP replicas.
func NewHTTPCluster(n int, model delivery.Model, delays Delays, log *zap.Logger) (*HTTPCluster, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hc := &HTTPCluster{}
	for i := 0; i < n; i++ {
		// Unstarted servers already own a bound listener, so every address is
		// known before any node is built.
		srv := httptest.NewUnstartedServer(http.NotFoundHandler())
		hc.servers = append(hc.servers, srv)
		hc.URLs = append(hc.URLs, "http://"+srv.Listener.Addr().String())
	}

	for i := 0; i < n; i++ {
		members, err := cluster.NewMembership(i, hc.URLs)
		if err != nil {
			hc.Close()
			return nil, err
		}
		sender := cluster.NewHTTPSender(members, 5*time.Second)
		node, err := buildNode(i, hc.URLs, model, sender, cluster.TimerScheduler{}, delays[i], log)
		if err != nil {
			hc.Close()
			return nil, err
		}
		hc.Nodes = append(hc.Nodes, node)
		hc.servers[i].Config.Handler = api.NewRouter(api.NewAPI(node, log.With(zap.Int("process", i))))
		hc.servers[i].Start()
	}
	return hc, nil
}

// Close stops every server.
func (hc *HTTPCluster) Close() {
	for _, s := range hc.servers {
		s.Close()
	}
}

func buildNode(self int, addrs []string, model delivery.Model, sender cluster.Sender,
	sched cluster.Scheduler, delays map[int]time.Duration, log *zap.Logger) (*cluster.Node, error) {
	members, err := cluster.NewMembership(self, addrs)
	if err != nil {
		return nil, err
	}
	engine, err := delivery.NewEngine(self, members.N(), model, log)
	if err != nil {
		return nil, err
	}
	fan := cluster.NewFanout(members, sender, sched, log, cluster.WithDelays(delays))
	return cluster.NewNode(engine, members, fan, log), nil
}

// CheckCausalOrder verifies that no message in v was applied before a
// message whose clock happened before its own. Messages without a clock are
// not ordered and are skipped.
func CheckCausalOrder(v feed.View) error {
	byID := make(map[string]event.Message)
	for _, group := range []map[string][]event.Message{v.Posts, v.Replies} {
		for _, ms := range group {
			for _, m := range ms {
				byID[m.EventID] = m
			}
		}
	}

	type applied struct {
		pos int
		vc  clock.VectorClock
		id  string
	}
	var seq []applied
	for i, id := range v.Applied {
		if m, ok := byID[id]; ok && m.VectorClock != nil {
			seq = append(seq, applied{i, m.VectorClock, id})
		}
	}
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].pos < seq[j].pos })

	for i := range seq {
		for j := i + 1; j < len(seq); j++ {
			if seq[j].vc.HappenedBefore(seq[i].vc) {
				return fmt.Errorf("P%d applied %s %s before its cause %s %s",
					v.ProcessID, seq[i].id, seq[i].vc, seq[j].id, seq[j].vc)
			}
		}
	}
	return nil
}
