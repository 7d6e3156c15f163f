package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup initializes the global zerolog level and returns a stdout logger.
//   - level: trace, debug, info, warn, error, fatal, panic (unknown values fall back to info)
//   - format: "pretty" for human-readable dev output, anything else emits JSON lines
func Setup(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	return New(os.Stdout, format)
}

// New builds a logger writing to w. Used directly by tests and CLIs.
func New(w io.Writer, format string) zerolog.Logger {
	if format == "pretty" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Str("service", "exstem-assessment").
		Logger()
}

// ParseLevel maps a level string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
