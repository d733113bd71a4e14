// Package logging builds the zerolog logger shared by every subsystem.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
)

// New returns a logger writing to stderr. Debug mode switches to the
// human-readable console writer and forces debug level.
func New(cfg config.GeneralConfig) zerolog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Debug {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return NewWithWriter(w, cfg)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, cfg config.GeneralConfig) zerolog.Logger {
	level := ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component tags a child logger with the subsystem name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
