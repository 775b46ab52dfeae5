// Package config loads a silo's YAML configuration, following the
// YAMLServerConfig pattern this codebase uses elsewhere: gopkg.in/yaml.v2
// struct tags plus a LoadFromFile validator.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// Silo holds everything a single process needs to join the ring and run
// the handoff manager.
type Silo struct {
	// SelfID is this silo's ring identity, e.g. "silo-3".
	SelfID string `yaml:"selfId"`
	// ListenAddr is the address the gRPC server binds to.
	ListenAddr string `yaml:"listenAddr"`
	// Seeds are other silos to gossip with at startup.
	Seeds []Seed `yaml:"seeds"`

	// GossipInterval is how often this silo ticks its heartbeat and
	// gossips with a random peer.
	GossipInterval time.Duration `yaml:"gossipInterval"`
	// FailTimeout is tFail: how long without a heartbeat before a peer
	// is considered dead.
	FailTimeout time.Duration `yaml:"failTimeout"`
	// AntiEntropyInterval is how often this silo's own partition is
	// merkle-diffed against a replica peer's; mirrored partitions are
	// not part of that diff.
	AntiEntropyInterval time.Duration `yaml:"antiEntropyInterval"`

	// RetryDelay is how long the operation executor waits between a
	// failed attempt and the next.
	RetryDelay time.Duration `yaml:"retryDelay"`
	// MaxDequeue bounds how many times a single operation is attempted
	// before it is dropped.
	MaxDequeue int `yaml:"maxDequeue"`

	// MetricsAddr, if non-empty, serves /metrics on this address.
	MetricsAddr string `yaml:"metricsAddr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

type Seed struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Defaults returns a Silo config with the constants named in this
// system's design: a 250ms retry delay and two dequeue attempts.
func Defaults() Silo {
	return Silo{
		GossipInterval:      1 * time.Second,
		FailTimeout:         5 * time.Second,
		AntiEntropyInterval: 30 * time.Second,
		RetryDelay:          250 * time.Millisecond,
		MaxDequeue:          2,
		LogLevel:            "info",
	}
}

// LoadFromFile reads and validates a YAML config, filling unset fields
// from Defaults.
func LoadFromFile(path string) (Silo, error) {
	cfg := Defaults()

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return Silo{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Silo{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Silo{}, err
	}
	return cfg, nil
}

// Validate checks the fields that have no sane zero-value default.
func (c Silo) Validate() error {
	if c.SelfID == "" {
		return fmt.Errorf("config: selfId is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listenAddr is required")
	}
	if c.MaxDequeue < 1 {
		return fmt.Errorf("config: maxDequeue must be at least 1, got %d", c.MaxDequeue)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("config: retryDelay must be positive")
	}
	if c.FailTimeout <= c.GossipInterval {
		return fmt.Errorf("config: failTimeout (%s) must exceed gossipInterval (%s)", c.FailTimeout, c.GossipInterval)
	}
	return nil
}
