// Package logger provides structured logging for idbstore
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with idbstore-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a level name to zerolog, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// New creates a structured logger
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "idbstore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Wrap adopts an existing zerolog logger
func Wrap(z zerolog.Logger) *Logger {
	return &Logger{zlog: z}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// DbLogger returns a child logger for one database
func (l *Logger) DbLogger(db string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "database").
			Str("db", db).
			Logger(),
	}
}

// LogTxn logs a finished transaction
func (l *Logger) LogTxn(id string, mode string, outcome string, duration time.Duration, requests int, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("txn", id).
		Str("mode", mode).
		Str("outcome", outcome).
		Dur("duration_ms", duration).
		Int("requests", requests).
		Msg("transaction finished")
}

// LogDbOperation logs a catalog operation such as open, upgrade or delete
func (l *Logger) LogDbOperation(operation string, duration time.Duration, version uint64, err error) {
	event := l.zlog.Info().
		Str("operation", operation).
		Dur("duration_ms", duration).
		Uint64("version", version)

	if err != nil {
		event = l.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("database operation completed")
}

var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) *Logger {
	globalLogger = New(cfg)
	log.Logger = *globalLogger.Zerolog()
	return globalLogger
}

// GetGlobalLogger returns the global logger, creating a default one if unset
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
