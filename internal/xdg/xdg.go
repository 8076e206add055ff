// Package xdg resolves XDG Base Directory paths for cursorbridge.
// It falls back to the traditional locations when the XDG environment
// variables are not set and creates directories with private permissions.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "cursorbridge"

// ConfigDir returns the XDG config directory for cursorbridge.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/cursorbridge when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
