package logging

import (
	"bytes"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, pterm.LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, pterm.LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, pterm.LogLevelError, ParseLevel("error"))
	assert.Equal(t, pterm.LogLevelInfo, ParseLevel(""))
	assert.Equal(t, pterm.LogLevelInfo, ParseLevel("chatty"))
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)

	log.Info("quiet")
	assert.Empty(t, buf.String())

	log.Warn("loud", "request_id", "abc")
	assert.Contains(t, buf.String(), "loud")
	assert.Contains(t, buf.String(), "abc")
}
