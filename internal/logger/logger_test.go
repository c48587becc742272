package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(Options{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("reply sent", "chat", "5511", "kind", "voice")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "reply sent", entry["msg"])
	assert.Equal(t, "5511", entry["chat"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(Options{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("dedup store failed", "id", "wamid.1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "dedup store failed")
	assert.Contains(t, out, "wamid.1")
}

func TestInvalidOptions(t *testing.T) {
	_, err := newWithWriter(Options{Format: "xml"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported log format")

	_, err = newWithWriter(Options{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported log level")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	log, closer, err := New(Options{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	log.Info("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}
