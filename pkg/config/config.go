// Package config decodes the process-wide configuration for a homie
// node: the shared group secret, network ports, timing intervals, and
// the resource caps enforced on every sandboxed container.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDiscoveryPort is the UDP port used for peer gossip.
	DefaultDiscoveryPort = 5555

	// DefaultWorkerPort is the TCP port used for job submission.
	DefaultWorkerPort = 5556

	// DefaultHeartbeatInterval is how often a node broadcasts its state.
	DefaultHeartbeatInterval = 2

	// DefaultPeerTimeout is how long a peer may go unseen before eviction.
	DefaultPeerTimeout = 10

	// DefaultJobTimeout is the hard per-job wall-clock timeout in seconds.
	DefaultJobTimeout = 600

	// DefaultMetricsAddr is where the Prometheus /metrics endpoint listens
	// when the config omits metrics_addr.
	DefaultMetricsAddr = "127.0.0.1:9090"

	// MinGroupSecretBytes is the minimum accepted length of GroupSecret.
	MinGroupSecretBytes = 16

	// homeSubdir is the directory under the user's home holding all
	// on-disk state: config.yaml, peers, peer_cache.json, job_history.jsonl.
	homeSubdir = ".homie"
)

// ContainerCaps bounds the resources a sandboxed job container may use.
type ContainerCaps struct {
	CPUCores    float64 `yaml:"cpu_cores"`
	MemoryBytes int64   `yaml:"memory_bytes"`
	PIDs        int64   `yaml:"pids"`
	TimeoutSecs int     `yaml:"timeout_seconds"`
	NetworkMode string  `yaml:"network_mode"`
	UID         uint32  `yaml:"uid"`
	GID         uint32  `yaml:"gid"`
}

// Config is the immutable process-wide configuration for a homie node.
// It is loaded once at startup and passed by pointer to every component
// that needs it; nothing mutates a Config after Load or Default returns.
type Config struct {
	Name              string        `yaml:"name"`
	GroupSecret       string        `yaml:"group_secret"`
	DiscoveryPort     int           `yaml:"discovery_port"`
	WorkerPort        int           `yaml:"worker_port"`
	HeartbeatInterval int           `yaml:"heartbeat_interval"`
	PeerTimeout       int           `yaml:"peer_timeout"`
	Container         ContainerCaps `yaml:"container"`
	DataDir           string        `yaml:"data_dir"`
	MetricsAddr       string        `yaml:"metrics_addr"`
}

// Default returns a Config with working defaults and a zero-value
// (empty) group secret; callers must still set GroupSecret before
// Validate will accept it.
func Default() *Config {
	home, err := HomeDir()
	if err != nil {
		home = homeSubdir
	}
	return &Config{
		DiscoveryPort:     DefaultDiscoveryPort,
		WorkerPort:        DefaultWorkerPort,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PeerTimeout:       DefaultPeerTimeout,
		Container: ContainerCaps{
			CPUCores:    1.0,
			MemoryBytes: 512 * 1024 * 1024,
			PIDs:        100,
			TimeoutSecs: DefaultJobTimeout,
			NetworkMode: "none",
			UID:         1000,
			GID:         1000,
		},
		DataDir:     home,
		MetricsAddr: DefaultMetricsAddr,
	}
}

// HomeDir returns <user_home>/.homie, creating no directories itself.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	return filepath.Join(home, homeSubdir), nil
}

// Load reads and decodes a YAML config file, filling in defaults for
// any field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the invariants the rest of the codebase relies on:
// a sufficiently long group secret and a resolvable name.
func (c *Config) Validate() error {
	if len(c.GroupSecret) < MinGroupSecretBytes {
		return fmt.Errorf("group_secret must be at least %d bytes, got %d", MinGroupSecretBytes, len(c.GroupSecret))
	}
	if c.Name == "" {
		return fmt.Errorf("name must be set")
	}
	return nil
}
