// Package logging wraps logrus with the thread-safe, field-tagged pattern
// used throughout this codebase, so every component logs through the same
// formatter regardless of which goroutine calls it.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// SafeLogger serializes writes to a shared logrus.Logger. logrus itself is
// safe for concurrent use, but components that build up a multi-field
// entry and then log it want that pair to be atomic from the reader's
// point of view, so every call goes through mu.
type SafeLogger struct {
	logger *logrus.Logger
	mu     sync.Mutex
}

// New builds a SafeLogger that writes text-formatted, timestamped entries
// to os.Stderr.
func New(level logrus.Level) *SafeLogger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &SafeLogger{logger: logger}
}

// NewFile builds a SafeLogger that appends to filename.
func NewFile(filename string, level logrus.Level) (*SafeLogger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	sl := New(level)
	sl.logger.SetOutput(file)
	return sl, nil
}

// Entry returns a *logrus.Entry bound to this logger's output, suitable for
// passing to limbo.New and other components that accept a pre-tagged
// entry rather than a bare logger.
func (sl *SafeLogger) Entry() *logrus.Entry {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return logrus.NewEntry(sl.logger)
}

func (sl *SafeLogger) Log(level logrus.Level, msg string, fields logrus.Fields) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.logger.WithFields(fields).Log(level, msg)
}

func (sl *SafeLogger) Debug(msg string, fields logrus.Fields) { sl.Log(logrus.DebugLevel, msg, fields) }
func (sl *SafeLogger) Info(msg string, fields logrus.Fields)  { sl.Log(logrus.InfoLevel, msg, fields) }
func (sl *SafeLogger) Warn(msg string, fields logrus.Fields)  { sl.Log(logrus.WarnLevel, msg, fields) }
func (sl *SafeLogger) Error(msg string, fields logrus.Fields) { sl.Log(logrus.ErrorLevel, msg, fields) }
