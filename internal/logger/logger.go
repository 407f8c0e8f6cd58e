// Package logger wraps zerolog with the component-tagged helpers used
// across bratseval.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger tags every event with the component that emitted it
type Logger struct {
	zl zerolog.Logger
}

// New returns a JSON logger writing to w at the given level
func New(w io.Writer, level zerolog.Level) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldInteger = true

	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// NewConsole returns a human-readable logger on stderr
func NewConsole(level zerolog.Level) *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a child logger whose events carry component=name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

func (l *Logger) Info(component, message string, fields map[string]interface{}) {
	l.emit(l.zl.Info(), component, fields).Msg(message)
}

func (l *Logger) Warning(component, message string, fields map[string]interface{}) {
	l.emit(l.zl.Warn(), component, fields).Msg(message)
}

func (l *Logger) Debug(component, message string, fields map[string]interface{}) {
	l.emit(l.zl.Debug(), component, fields).Msg(message)
}

// Error logs err with the failing operation's context
func (l *Logger) Error(component string, err error, fields map[string]interface{}) {
	l.emit(l.zl.Error(), component, fields).Err(err).Msg("operation failed")
}

func (l *Logger) emit(event *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	if event == nil {
		return nil
	}
	event = event.Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
