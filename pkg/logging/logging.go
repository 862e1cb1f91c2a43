// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/itohio/goeeg/pkg/config"
)

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// ParseLevel maps a level name to a slog level; unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := logLevels[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("logging: invalid level %q", name)
	}
	return level, nil
}

// Output returns the log destination: a rotating file when cfg.File is set,
// stderr otherwise.
func Output(cfg config.LogConfig) io.WriteCloser {
	if cfg.File == "" {
		return nopCloser{os.Stderr}
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
}

// New builds a JSON logger writing to w.
func New(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, err := ParseLevel(cfg.Level)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	if err != nil {
		logger.Error("invalid log level, defaulting to INFO", "level", cfg.Level)
	}
	return logger
}

// Setup builds the logger from cfg and installs it as the slog default.
// The returned closer releases the log file.
func Setup(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	out := Output(cfg)
	logger := New(out, cfg)
	slog.SetDefault(logger)
	return logger, out
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
