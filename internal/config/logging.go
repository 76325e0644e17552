package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// SetupLogger creates a JSON logger writing to a rotating file and, when
// Console is set, a text copy on stderr. The terminal belongs to the UI, so
// the console copy is off by default.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(cfg LoggingConfig) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	var console io.Writer
	if cfg.Console {
		console = os.Stderr
	}
	return SetupLoggerWithWriters(console, rotator, level), rotator.Close, nil
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
// A nil console writer disables console output.
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	if console == nil {
		return slog.New(fileHandler)
	}
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}
