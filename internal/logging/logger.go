// Package logging builds the structured zerolog.Logger every binary in
// this module shares.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New creates a structured logger. JSON output is Loki-compatible;
// console output is human-readable for local development.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "gatewaycore").
		Logger()
}
