package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicad.yaml")
	src := "hub:\n  url: ws://file/hub\nsession:\n  page_size: 10\n  scopes: [from-file]\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg, err := loadConfig([]string{
		"-c", path,
		"--url", "wss://flag/hub",
		"--scope", "a", "--scope", "b",
		"--header", "Authorization=Bearer t",
		"--tick", "20ms",
		"--election=false",
	})
	require.NoError(t, err)

	assert.Equal(t, "wss://flag/hub", cfg.Hub.URL)
	assert.Equal(t, 10, cfg.Session.PageSize)
	assert.Equal(t, []string{"a", "b"}, cfg.Session.Scopes)
	assert.Equal(t, "Bearer t", cfg.Hub.Headers["Authorization"])
	assert.Equal(t, 20*time.Millisecond, cfg.Session.TickInterval)
	assert.False(t, cfg.Session.LeaderElection)
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	_, err := loadConfig([]string{"--tick", "0s"})
	assert.Error(t, err)

	_, err = loadConfig([]string{"--no-such-flag"})
	assert.Error(t, err)
}
