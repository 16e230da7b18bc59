// Package logger builds the zerolog root logger every pricelens component
// derives its child loggers from.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the root logger. Level falls back to info when the
// value is unknown; Pretty switches to the console writer for dev runs.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool
}

// New builds the root logger with the service field attached. Components
// add their own "component" field via log.With().
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "pricelens").
		Logger()
}

// SetGlobalLogger replaces the zerolog package-level logger, so libraries
// logging through zerolog/log share the same output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
