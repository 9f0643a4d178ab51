// Package logger is the process-wide zerolog logger shared by the relay's
// components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogConfig selects level, output format and an optional log file.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
	File   string `mapstructure:"file"`   // also append JSON lines here
}

const consoleTimeFormat = "15:04:05.000"

var (
	mu      sync.RWMutex
	current = zerolog.New(os.Stderr).With().Timestamp().Logger()
	file    *os.File
)

// parseLevel maps a config level to zerolog, falling back to info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Init replaces the global logger. The console format is meant for a
// terminal; the log file always receives JSON.
func Init(cfg LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
	}

	closeFile()
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		file = f
		out = zerolog.MultiLevelWriter(out, f)
	}

	current = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// SetOutput sends all logging to w as JSON lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	current = zerolog.New(w).With().Timestamp().Logger()
}

// Get returns the global logger.
func Get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := current
	return &l
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// Close closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFile()
}

func closeFile() error {
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }
