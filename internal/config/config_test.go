package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/election"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, election.DefaultHeartbeatInterval, cfg.Election.HeartbeatInterval)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel())
}

func TestParseOverridesDefaults(t *testing.T) {
	src := `
hub:
  url: wss://relay.example.com/hub
  headers:
    Authorization: Bearer abc
log:
  level: debug
session:
  tick_interval: 100ms
  page_size: 25
  scopes: [lobby, arena]
election:
  heartbeat_interval: 5s
`
	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.com/hub", cfg.Hub.URL)
	assert.Equal(t, 10*time.Second, cfg.Hub.HandshakeTimeout, "untouched keys keep defaults")
	assert.Equal(t, log.LevelDebug, cfg.LogLevel())
	assert.Equal(t, 100*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Election.HeartbeatInterval)

	sc := cfg.SessionConfig()
	assert.Equal(t, []string{"lobby", "arena"}, sc.Scopes)
	assert.Equal(t, 25, sc.PageSize)
	assert.True(t, sc.LeaderElection)

	wc := cfg.WebsocketConfig()
	assert.Equal(t, "Bearer abc", wc.Headers["Authorization"])
	wc.Headers["Authorization"] = "changed"
	assert.Equal(t, "Bearer abc", cfg.Hub.Headers["Authorization"])
}

func TestParseEmptyInputYieldsDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "hub:\n  adress: ws://x\n",
		"http url":          "hub:\n  url: http://relay\n",
		"zero tick":         "session:\n  tick_interval: 0s\n",
		"negative page":     "session:\n  page_size: -1\n",
		"bad level":         "log:\n  level: loud\n",
		"empty scope":       "session:\n  scopes: [\"\"]\n",
		"zero heartbeat":    "election:\n  heartbeat_interval: 0s\n",
		"bad duration":      "session:\n  tick_interval: soon\n",
		"negative max size": "hub:\n  max_message_size: -5\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			require.Error(t, err)
			assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  registry_shards: 8\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Session.RegistryShards)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
