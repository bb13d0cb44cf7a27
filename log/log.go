package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with helpers for per-module child loggers.
type Logger struct {
	zerolog.Logger
}

// New creates a logger at the given level. Unknown levels fall back to info.
// When pretty is set, output goes through zerolog's console writer.
func New(level string, pretty bool) *Logger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level string, pretty bool) *Logger {
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	l := zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: l}
}

// Module returns a child logger tagged with the module name.
func (l *Logger) Module(name string) zerolog.Logger {
	return l.With().Str("module", name).Logger()
}

// ParseLevel maps a textual level to zerolog's, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
