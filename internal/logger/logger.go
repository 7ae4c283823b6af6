package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger defines a standard interface for logging.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// ZerologLogger is a wrapper around a zerolog logger.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new logger instance writing JSON lines to stdout.
func NewLogger(level string) *ZerologLogger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a logger that writes to w at the given level.
// Unknown or empty levels fall back to info.
func NewLoggerTo(w io.Writer, level string) *ZerologLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	zl := zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", "mpdgrab").
		Logger()
	return &ZerologLogger{zl: zl}
}

// With returns a child logger annotated with the given component name.
func (l *ZerologLogger) With(component string) *ZerologLogger {
	return &ZerologLogger{zl: l.zl.With().Str("component", component).Logger()}
}

// Debugf logs a message at the debug level.
func (l *ZerologLogger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, v...))
}

// Infof logs a message at the info level.
func (l *ZerologLogger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, v...))
}

// Warnf logs a message at the warn level.
func (l *ZerologLogger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, v...))
}

// Errorf logs a message at the error level.
func (l *ZerologLogger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
}

// Component returns a child of l annotated with component when l supports it,
// otherwise l unchanged.
func Component(l Logger, component string) Logger {
	if zl, ok := l.(*ZerologLogger); ok {
		return zl.With(component)
	}
	return l
}
