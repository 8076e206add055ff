package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 64, c.Backend.BatchSize)
	assert.Equal(t, 30*time.Second, c.Timeouts.Wait)
	assert.Equal(t, ":7070", c.Server.Addr)
}

func TestSaveThenLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	want := Config{
		LogLevel: "debug",
		Backend:  BackendConfig{Target: "memory://demo", BatchSize: 8},
		Timeouts: TimeoutConfig{Query: 5 * time.Second, Wait: time.Minute},
		Server:   ServerConfig{Addr: "127.0.0.1:9000"},
		Features: map[string]any{"generated_keys_by_default": true},
	}
	require.NoError(t, SaveFile(p, want))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, want.LogLevel, got.LogLevel)
	assert.Equal(t, want.Backend, got.Backend)
	assert.Equal(t, want.Timeouts, got.Timeouts)
	assert.Equal(t, want.Server, got.Server)
	assert.Equal(t, true, got.Features["generated_keys_by_default"])
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CURSORBRIDGE_BACKEND_TARGET", "grpc://bridge:7070")
	t.Setenv("CURSORBRIDGE_TIMEOUTS_QUERY", "2s")
	t.Setenv("CURSORBRIDGE_LOG_LEVEL", "warn")

	c, err := LoadFile(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "grpc://bridge:7070", c.Backend.Target)
	assert.Equal(t, 2*time.Second, c.Timeouts.Query)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))
	_, err := LoadFile(p)
	assert.Error(t, err)
}

func TestLoadUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c := Defaults()
	c.Backend.Target = "memory://xdg"
	require.NoError(t, Save(c))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory://xdg", got.Backend.Target)
}
