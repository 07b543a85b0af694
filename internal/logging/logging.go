// Package logging provides structured logging using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Components derive child loggers from
// it via Component rather than creating their own.
var Logger zerolog.Logger

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level, parsed case-insensitively
	// (DEBUG|INFO|WARN|ERROR|FATAL). Unknown values mean INFO.
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output for the CLI.
	Pretty bool
}

// Init initializes the global logger.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	Logger = zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Debug starts a debug-level message on the global logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info-level message on the global logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn-level message on the global logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error-level message on the global logger.
func Error() *zerolog.Event { return Logger.Error() }

func init() {
	Init(Config{})
}
