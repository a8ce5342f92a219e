// Package config loads and validates the runtime-mutable parameters of a
// synclimbo node: every field has a default, and Load rejects a file as a
// whole if any field fails validation rather than silently clamping
// values.
package config

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds the parameters a running node needs at startup and the two
// that remain mutable afterwards (Quorum, Timeout).
type Config struct {
	// LocalPeer identifies this node in PeerPositions and in every
	// CONFIRM/ROLLBACK record this node originates.
	LocalPeer uint32 `yaml:"local_peer" mapstructure:"local_peer"`

	// Quorum is the initial synchro_quorum: the minimum number of
	// distinct peer acknowledgements required to confirm an entry.
	Quorum int `yaml:"quorum" mapstructure:"quorum"`

	// Timeout is the initial synchro_timeout, how long an unconfirmed
	// entry is allowed to sit at the head of the queue.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// WALPath is the sqlite database file backing the reference
	// LogBridge implementation (internal/walstore).
	WALPath string `yaml:"wal_path" mapstructure:"wal_path"`

	// ListenAddress is the bind address for the admin HTTP surface
	// (internal/api).
	ListenAddress string `yaml:"listen_address" mapstructure:"listen_address"`

	// WatchdogInterval is the cron spec the periodic backlog reporter
	// runs on (internal/watchdog).
	WatchdogInterval string `yaml:"watchdog_interval" mapstructure:"watchdog_interval"`
}

// Default returns a Config with conservative, single-node-friendly values.
func Default() Config {
	return Config{
		LocalPeer:        1,
		Quorum:           1,
		Timeout:          time.Second,
		WALPath:          "synclimbo.db",
		ListenAddress:    "127.0.0.1:8443",
		WatchdogInterval: "@every 5s",
	}
}

// Validate rejects a zero local peer, a quorum below 1, a non-positive
// timeout and an empty wal_path. The limbo package does not check these
// values itself.
func (c Config) Validate() error {
	if c.LocalPeer == 0 {
		return errors.New("local_peer must be non-zero")
	}
	if c.Quorum < 1 {
		return errors.New("quorum must be at least 1")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.WALPath == "" {
		return errors.New("wal_path must be set")
	}
	return nil
}

// Load reads a YAML document at path, decodes it onto Default(), and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return cfg, errors.Wrap(err, "build config decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, errors.Wrap(err, "decode config file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
