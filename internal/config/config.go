// Package config loads the replicad configuration from YAML.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/replica/internal/core/election"
	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/registry"
	"github.com/zeusync/replica/internal/core/session"
)

// Config is the full replicad configuration.
type Config struct {
	Hub      HubConfig      `yaml:"hub"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Election ElectionConfig `yaml:"election"`
}

type HubConfig struct {
	URL              string            `yaml:"url"`
	Headers          map[string]string `yaml:"headers,omitempty"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	PingInterval     time.Duration     `yaml:"ping_interval"`
	MaxMessageSize   int64             `yaml:"max_message_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type SessionConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	PageSize           int           `yaml:"page_size"`
	MaxPatchesPerBatch int           `yaml:"max_patches_per_batch"`
	EncodeWorkers      int           `yaml:"encode_workers"`
	RegistryShards     int           `yaml:"registry_shards"`
	Scopes             []string      `yaml:"scopes,omitempty"`
	LeaderElection     bool          `yaml:"leader_election"`
	AllowSelfMessaging bool          `yaml:"allow_self_messaging"`
}

type ElectionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Hub: HubConfig{
			URL:              "ws://127.0.0.1:8080/multiplayer",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			PingInterval:     15 * time.Second,
			MaxMessageSize:   4 * 1024 * 1024, // 4MB
		},
		Log: LogConfig{Level: "info"},
		Session: SessionConfig{
			TickInterval:       50 * time.Millisecond,
			PageSize:           session.DefaultPageSize,
			MaxPatchesPerBatch: session.DefaultMaxPatchesBatch,
			EncodeWorkers:      session.DefaultEncodeWorkers,
			RegistryShards:     registry.DefaultShardCount,
			LeaderElection:     true,
		},
		Election: ElectionConfig{HeartbeatInterval: election.DefaultHeartbeatInterval},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(protocol.ErrInvalidConfig, "decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Hub.URL == "":
		return errors.Wrap(protocol.ErrInvalidConfig, "hub.url is required")
	case !strings.HasPrefix(c.Hub.URL, "ws://") && !strings.HasPrefix(c.Hub.URL, "wss://"):
		return errors.Wrapf(protocol.ErrInvalidConfig, "hub.url %q is not a websocket url", c.Hub.URL)
	case c.Hub.HandshakeTimeout < 0 || c.Hub.WriteTimeout < 0 || c.Hub.PingInterval < 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "hub timeouts must not be negative")
	case c.Hub.MaxMessageSize < 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "hub.max_message_size must not be negative")
	case c.Session.TickInterval <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "session.tick_interval must be positive")
	case c.Session.PageSize <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "session.page_size must be positive")
	case c.Session.MaxPatchesPerBatch <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "session.max_patches_per_batch must be positive")
	case c.Session.EncodeWorkers <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "session.encode_workers must be positive")
	case c.Session.RegistryShards <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "session.registry_shards must be positive")
	case c.Election.HeartbeatInterval <= 0:
		return errors.Wrap(protocol.ErrInvalidConfig, "election.heartbeat_interval must be positive")
	}

	for _, scope := range c.Session.Scopes {
		if strings.TrimSpace(scope) == "" {
			return errors.Wrap(protocol.ErrInvalidConfig, "session.scopes contains an empty scope")
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(protocol.ErrInvalidConfig, err.Error())
	}
	return nil
}

// LogLevel is the parsed log level. Validate has already rejected bad ones.
func (c Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}

func (c Config) WebsocketConfig() hub.WebsocketConfig {
	headers := make(map[string]string, len(c.Hub.Headers))
	for k, v := range c.Hub.Headers {
		headers[k] = v
	}
	return hub.WebsocketConfig{
		URL:              c.Hub.URL,
		Headers:          headers,
		HandshakeTimeout: c.Hub.HandshakeTimeout,
		WriteTimeout:     c.Hub.WriteTimeout,
		PingInterval:     c.Hub.PingInterval,
		MaxMessageSize:   c.Hub.MaxMessageSize,
	}
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		Scopes:             append([]string(nil), c.Session.Scopes...),
		PageSize:           c.Session.PageSize,
		MaxPatchesPerBatch: c.Session.MaxPatchesPerBatch,
		EncodeWorkers:      c.Session.EncodeWorkers,
		LeaderElection:     c.Session.LeaderElection,
		AllowSelfMessaging: c.Session.AllowSelfMessaging,
	}
}
