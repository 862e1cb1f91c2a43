package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itohio/goeeg/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{name: "DEBUG", want: slog.LevelDebug},
		{name: "info", want: slog.LevelInfo},
		{name: " Warn ", want: slog.LevelWarn},
		{name: "ERROR", want: slog.LevelError},
		{name: "TRACE", want: slog.LevelInfo, wantErr: true},
		{name: "", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: "WARN"})

	logger.Info("hidden")
	logger.Warn("shown", "type", "connection_status", "connected", true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "connection_status", rec["type"])
	assert.Equal(t, true, rec["connected"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: "LOUD"})
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	assert.Contains(t, out, "invalid log level")
	assert.Contains(t, out, "shown")
	assert.NotContains(t, out, "hidden")
}

func TestOutput(t *testing.T) {
	w := Output(config.LogConfig{})
	assert.NoError(t, w.Close())

	file := filepath.Join(t.TempDir(), "eegpi.log")
	w = Output(config.LogConfig{File: file, MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3})
	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 1, lj.MaxSize)
	assert.Equal(t, 2, lj.MaxBackups)
	assert.Equal(t, 3, lj.MaxAge)

	logger := New(w, config.LogConfig{Level: "INFO"})
	logger.Info("to file")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
