// Package config loads the immutable bootstrap configuration of a replica.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrInvalidNodeID is returned when the own id does not index into the
// peer list.
var ErrInvalidNodeID = errors.New("invalid node id")

// DefaultPeers is the three-replica local cluster.
var DefaultPeers = []string{
	"http://localhost:8080",
	"http://localhost:8081",
	"http://localhost:8082",
}

// Config holds the node configuration. The process count is len(Peers).
type Config struct {
	NodeID      int           `env:"FEED_NODE_ID"      envDefault:"0"`
	Model       string        `env:"FEED_MODEL"        envDefault:"CC"`
	Peers       []string      `env:"FEED_PEERS"        envSeparator:","`
	ListenAddr  string        `env:"FEED_LISTEN"`
	Delays      string        `env:"FEED_DELAYS"`
	SendTimeout time.Duration `env:"FEED_SEND_TIMEOUT" envDefault:"5s"`
	LogLevel    string        `env:"FEED_LOG_LEVEL"    envDefault:"info"`
	LogFormat   string        `env:"FEED_LOG_FORMAT"   envDefault:"json"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.Peers) == 0 {
		cfg.Peers = append([]string(nil), DefaultPeers...)
		return cfg, nil
	}
	peers, err := ParsePeers(strings.Join(cfg.Peers, ","))
	if err != nil {
		return Config{}, fmt.Errorf("parse env: FEED_PEERS: %w", err)
	}
	cfg.Peers = peers
	return cfg, nil
}

// N returns the number of processes in the cluster.
func (c Config) N() int {
	return len(c.Peers)
}

// Validate checks the invariants the rest of the node relies on.
func (c Config) Validate() error {
	if len(c.Peers) == 0 {
		return errors.New("at least one peer address is required")
	}
	if c.NodeID < 0 || c.NodeID >= len(c.Peers) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidNodeID, c.NodeID, len(c.Peers))
	}
	for i, p := range c.Peers {
		if _, err := parseBaseURL(p); err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive, got %s", c.SendTimeout)
	}
	delays, err := ParseDelays(c.Delays)
	if err != nil {
		return err
	}
	for dest := range delays {
		if dest < 0 || dest >= len(c.Peers) {
			return fmt.Errorf("delay for unknown process %d", dest)
		}
	}
	return nil
}

// Listen returns the address to bind. Without an explicit FEED_LISTEN the
// port of the own peer URL is used on all interfaces.
func (c Config) Listen() (string, error) {
	if c.ListenAddr != "" {
		return c.ListenAddr, nil
	}
	if c.NodeID < 0 || c.NodeID >= len(c.Peers) {
		return "", fmt.Errorf("%w: %d", ErrInvalidNodeID, c.NodeID)
	}
	u, err := parseBaseURL(c.Peers[c.NodeID])
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort("", port), nil
}

// ParsePeers splits a comma-separated list of base URLs. The position of
// each address is the process id it belongs to.
func ParsePeers(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	peers := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty peer address in %q", s)
		}
		if _, err := parseBaseURL(part); err != nil {
			return nil, err
		}
		peers = append(peers, strings.TrimRight(part, "/"))
	}
	return peers, nil
}

// ParseDelays parses per-destination send delays in the format
// "2=30s,1=500ms".
func ParseDelays(s string) (map[int]time.Duration, error) {
	delays := make(map[int]time.Duration)
	if strings.TrimSpace(s) == "" {
		return delays, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid delay format: %s (expected dest=duration)", part)
		}
		dest, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid delay destination %q: %w", kv[0], err)
		}
		d, err := time.ParseDuration(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid delay for %d: %w", dest, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("negative delay for %d", dest)
		}
		delays[dest] = d
	}
	return delays, nil
}

// FormatDelays is the inverse of ParseDelays, ordered by destination.
func FormatDelays(delays map[int]time.Duration) string {
	dests := make([]int, 0, len(delays))
	for d := range delays {
		dests = append(dests, d)
	}
	sort.Ints(dests)
	parts := make([]string, len(dests))
	for i, d := range dests {
		parts[i] = fmt.Sprintf("%d=%s", d, delays[d])
	}
	return strings.Join(parts, ",")
}

func parseBaseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid peer address %q: scheme must be http or https", s)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid peer address %q: missing host", s)
	}
	return u, nil
}
