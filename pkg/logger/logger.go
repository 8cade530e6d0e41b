// Package logger builds the zerolog loggers used across the simulator.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding, and destination.
type Config struct {
	Level  string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" json:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" json:"output" default:"stderr"` // stdout, stderr, or a file path
}

// New returns a timestamped logger. Unknown levels fall back to info.
func New(cfg Config) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).With().Timestamp().Logger().Level(lvl), nil
}

// Component tags a logger with the emitting component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
