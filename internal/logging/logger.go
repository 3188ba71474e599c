// Package logging provides the structured logger used throughout the i10
// target. It wraps logrus the way the retrieved runZeroInc packages and
// samsamfire/gocanopen do, behind the same small interface shape the
// teacher's internal/logging package exposed so call sites read
// identically regardless of which library sits underneath.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with level-gated helpers matching the
// vocabulary the core uses: Debugf/Printf for operational tracing,
// structured fields for everything that wants to be queried later.
type Logger struct {
	entry *logrus.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Config holds logging configuration.
type Config struct {
	Level  logrus.Level
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration: info level,
// stderr, text formatter (the gocanopen/sockstats convention).
func DefaultConfig() *Config {
	return &Config{
		Level:  logrus.InfoLevel,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(config.Level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: l}
}

// Default returns the process-wide default logger, creating it lazily.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the process-wide default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithQueue returns a logger entry carrying the queue's correlation
// fields, the way the pack's sockstats logger tags entries with
// connection identity.
func (l *Logger) WithQueue(qid uint16, corrID string) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields{
		"qid":  qid,
		"conn": corrID,
	})
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Printf satisfies the backend.Logger-shaped interface used across the
// repo (teacher parity: Printf logs at info level).
func (l *Logger) Printf(format string, args ...any) { l.entry.Infof(format, args...) }

// Global convenience functions mirroring the teacher's package-level helpers.
func Debugf(format string, args ...any) { Default().Debugf(format, args...) }
func Infof(format string, args ...any)  { Default().Infof(format, args...) }
func Warnf(format string, args ...any)  { Default().Warnf(format, args...) }
func Errorf(format string, args ...any) { Default().Errorf(format, args...) }
