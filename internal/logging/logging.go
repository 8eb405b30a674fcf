// Package logging configures the process-wide zerolog logger and hands out
// component loggers
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the base logger
type Config struct {
	Level   string    // optional level ("debug", "info", ...), falls back to CAPTURE_LOG_LEVEL
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Console bool      // human-readable console output instead of JSON
}

var (
	once sync.Once
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "capture-graph").Logger()
)

// Configure initialises the base logger exactly once. Later calls are no-ops.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		raw := cfg.Level
		if raw == "" {
			raw = os.Getenv("CAPTURE_LOG_LEVEL")
		}
		if raw != "" {
			if parsed, err := zerolog.ParseLevel(raw); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		var w io.Writer = cfg.Output
		if w == nil {
			w = os.Stderr
		}
		if cfg.Console {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
		}

		base = zerolog.New(w).With().
			Timestamp().
			Str("service", "capture-graph").
			Logger()
	})
}

// Base returns the base logger
func Base() zerolog.Logger {
	return base
}

// WithComponent returns a child logger annotated with the component name
func WithComponent(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
