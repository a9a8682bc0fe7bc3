package app

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/config"
)

// NewLogger builds the process logger from logging settings.
// Format "console" writes human-readable lines; anything else writes JSON.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
