package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moffa90/go-atdfu/config"
	"github.com/moffa90/go-atdfu/dfu"
	"github.com/moffa90/go-atdfu/transport"
)

// The adapter must satisfy both library logger interfaces.
var (
	_ dfu.Logger       = (*Adapter)(nil)
	_ transport.Logger = (*Adapter)(nil)
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "debug", want: zapcore.DebugLevel},
		{name: "INFO", want: zapcore.InfoLevel},
		{name: "", want: zapcore.InfoLevel},
		{name: "warning", want: zapcore.WarnLevel},
		{name: "error", want: zapcore.ErrorLevel},
		{name: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("chunk written", zap.Int("chunk", 3))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "chunk written", rec["msg"])
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, float64(3), rec["chunk"])
}

func TestNewWritesRollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smdfu.log")

	var console bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{
		Level:  "debug",
		Format: "console",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, &console)
	require.NoError(t, err)

	logger.Debug("device ready")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "device ready")
	assert.Contains(t, console.String(), "device ready")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := Adapt(zap.New(core))

	a.Debug("sent command", "cmd", "AT")
	a.Info("device ready")
	a.Warn("chunk write failed", "attempt", 2)
	a.Error("dfu failed", "type", "application")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "AT", entries[0].ContextMap()["cmd"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, int64(2), entries[2].ContextMap()["attempt"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}
