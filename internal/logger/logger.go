// Package logger wraps zerolog.Logger for keyp's diagnostic output.
//
// Diagnostics go to stderr so they never mix with command output on stdout.
// Nothing logged through this package may contain a secret value or a
// password; secret names are fine.
package logger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "warn"

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New returns a human-readable logger writing to w at the given level
// ("debug", "info", "warn", "error", "disabled").
func New(level string, w io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.TimeOnly}
	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &Logger{l}, nil
}

// NewJSON returns a logger emitting one JSON object per line, used by the
// MCP server where stderr is read by another program.
func NewJSON(level string, w io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &Logger{zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str("component", name).Logger()}
}

// ParseLevel maps a level name to a zerolog level. The empty string selects
// DefaultLevel.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		level = DefaultLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logger: invalid level %q", level)
	}
	return lvl, nil
}
