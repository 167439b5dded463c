// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for PeerSync.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Signaling configures the rendezvous used to exchange SDP.
	Signaling SignalingConfig `yaml:"signaling"`

	// ICE configures STUN/TURN servers for NAT traversal.
	ICE ICEConfig `yaml:"ice"`

	// Transfer configures protocol timing. All fields are defaults,
	// not protocol requirements; both sides may differ.
	Transfer TransferConfig `yaml:"transfer"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for the local library. Defaults to
	// ~/.local/share/peersync.
	Root string `yaml:"root"`

	// Database is the SQLite library database path. Defaults to
	// <root>/library.db.
	Database string `yaml:"database"`

	// Blobs is the media blob directory. Defaults to <root>/blobs.
	Blobs string `yaml:"blobs"`

	// State is where runtime state (transfer reports) is stored.
	// Defaults to <root>/state.
	State string `yaml:"state"`
}

// SignalingConfig configures the rendezvous server.
type SignalingConfig struct {
	// URL is the base URL of the rendezvous HTTP API. Required for
	// real transfers; tests use the in-process signaler instead.
	URL string `yaml:"url"`
}

// ICEConfig configures ICE servers.
type ICEConfig struct {
	// Servers is the list of STUN/TURN URIs, in priority order. Empty
	// means host candidates only (same machine or same LAN).
	Servers []ICEServer `yaml:"servers"`
}

// ICEServer is a single STUN or TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// TransferConfig holds protocol timing overrides. Zero values mean
// "use the built-in default".
type TransferConfig struct {
	// AckTimeout is how long the sender waits for a per-record ack.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// DrainTimeout bounds the wait for the outbound buffer to drain.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// ImageWait bounds the receiver's wait for trailing image parts
	// after a record_end arrives early.
	ImageWait time.Duration `yaml:"image_wait"`

	// VideoWait bounds the receiver's wait for trailing video chunks.
	VideoWait time.Duration `yaml:"video_wait"`
}

// Default returns the default configuration. These defaults make
// `peersync send`/`receive` work with no config file at all when a
// --signaling-url flag is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "peersync")

	return &Config{
		Paths: PathsConfig{
			Root:     root,
			Database: filepath.Join(root, "library.db"),
			Blobs:    filepath.Join(root, "blobs"),
			State:    filepath.Join(root, "state"),
		},
	}
}

// Load loads configuration from the PEERSYNC_CONFIG environment
// variable, falling back to defaults when it is unset. Unlike server
// software, an end-user tool must work with zero configuration.
func Load() (*Config, error) {
	configPath := os.Getenv("PEERSYNC_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override individual values. Paths the file leaves empty derive from
// the file's root; only a missing root falls back to the home default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.Paths.Root == "" {
		cfg.Paths.Root = Default().Paths.Root
	}
	cfg.fillDerivedPaths()
	return cfg, nil
}

// fillDerivedPaths computes Database/Blobs/State from Root when the
// file sets Root but leaves the derived paths empty.
func (c *Config) fillDerivedPaths() {
	if c.Paths.Root == "" {
		return
	}
	if c.Paths.Database == "" {
		c.Paths.Database = filepath.Join(c.Paths.Root, "library.db")
	}
	if c.Paths.Blobs == "" {
		c.Paths.Blobs = filepath.Join(c.Paths.Root, "blobs")
	}
	if c.Paths.State == "" {
		c.Paths.State = filepath.Join(c.Paths.Root, "state")
	}
}

// EnsurePaths creates the root, blob, and state directories.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.Paths.Root, c.Paths.Blobs, c.Paths.State} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
