package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/config"
)

// configureLogger sets up logging from the environment so that config
// loading itself can log.
func configureLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("DICTL_LOG_LEVEL"))); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	format := strings.ToLower(strings.TrimSpace(os.Getenv("DICTL_LOG_FORMAT")))

	log.Logger = newLogger(os.Stderr, format).Level(level)
	zerolog.SetGlobalLevel(level)
}

// applyLogging switches to the configured level and format and tags every
// line with a run id.
func applyLogging(cfg config.LoggingConfig) string {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}
	format := "console"
	if cfg.JSON || !cfg.HumanReadable {
		format = "json"
	}

	runID := xid.New().String()
	log.Logger = newLogger(os.Stderr, format).Level(level).With().Str("run_id", runID).Logger()
	zerolog.SetGlobalLevel(level)
	return runID
}

func newLogger(out io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}
