package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

const (
	FieldChain  = "chain"
	FieldDomain = "domain"
	FieldIntent = "intent_hash"
	FieldModule = "module"
)

func New(writer io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
}

// WithModule tags a logger with the subsystem it serves. Every long-lived
// component takes its logger through this so feeds from one process are
// separable.
func WithModule(logger zerolog.Logger, module string) zerolog.Logger {
	return logger.With().Str(FieldModule, module).Logger()
}

// WithIntent tags a logger with the intent hash a log line concerns.
func WithIntent(logger zerolog.Logger, hash string) zerolog.Logger {
	return logger.With().Str(FieldIntent, hash).Logger()
}
