// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the PostgreSQL DSN goes to the OS
// keychain. Every key can be overridden from the environment with the
// CURSORBRIDGE_ prefix, dots replaced by underscores
// (CURSORBRIDGE_BACKEND_TARGET, CURSORBRIDGE_TIMEOUTS_QUERY, ...).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cursorbridge/cli/internal/xdg"
)

const (
	fileName  = "config.json"
	envPrefix = "CURSORBRIDGE"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Server   ServerConfig   `mapstructure:"server"`
	Features map[string]any `mapstructure:"features"`
}

// BackendConfig selects the backend commands connect to.
type BackendConfig struct {
	// Target is a memory://, postgres:// or grpc:// target. Empty falls back
	// to the DSN stored in the keychain.
	Target    string `mapstructure:"target"`
	BatchSize int    `mapstructure:"batch_size"`
}

// TimeoutConfig bounds request execution.
type TimeoutConfig struct {
	// Query cancels a request that runs longer. Zero disables it.
	Query time.Duration `mapstructure:"query"`
	// Wait bounds how long commands wait for the first response.
	Wait time.Duration `mapstructure:"wait"`
}

// ServerConfig configures `cursorbridge serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Backend:  BackendConfig{BatchSize: 64},
		Timeouts: TimeoutConfig{Wait: 30 * time.Second},
		Server:   ServerConfig{Addr: ":7070"},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

func newViper() *viper.Viper {
	d := Defaults()
	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("backend.target", d.Backend.Target)
	v.SetDefault("backend.batch_size", d.Backend.BatchSize)
	v.SetDefault("timeouts.query", d.Timeouts.Query)
	v.SetDefault("timeouts.wait", d.Timeouts.Wait)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("features", map[string]any{})
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from the XDG config dir; missing file returns
// defaults with environment overrides applied.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Defaults(), err
	}
	return LoadFile(p)
}

// LoadFile reads configuration from path.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !missing(err) {
		return Defaults(), fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Defaults(), fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func missing(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

// Save writes configuration to the XDG config dir with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, c)
}

// SaveFile writes c to path with 0600 permissions. Durations are stored in
// their string form ("30s").
func SaveFile(path string, c Config) error {
	doc := map[string]any{
		"log_level": c.LogLevel,
		"backend": map[string]any{
			"target":     c.Backend.Target,
			"batch_size": c.Backend.BatchSize,
		},
		"timeouts": map[string]any{
			"query": c.Timeouts.Query.String(),
			"wait":  c.Timeouts.Wait.String(),
		},
		"server": map[string]any{
			"addr": c.Server.Addr,
		},
	}
	if len(c.Features) > 0 {
		doc["features"] = c.Features
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
