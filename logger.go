package mq

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with the key/value calling convention used
// throughout this package: Debug/Info/Warn/Error take a message followed by
// alternating key, value pairs.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger wraps an existing logrus.Logger for use with WithLogger.
func NewLogger(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// discardLogger returns a Logger that drops all output, used as the default
// when the caller does not supply one via WithLogger.
func discardLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewLogger(l)
}

// With returns a Logger that attaches the given key/value pairs to every
// subsequent log entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fieldsFromArgs(args))}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.entry.WithFields(fieldsFromArgs(args)).Debug(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	l.entry.WithFields(fieldsFromArgs(args)).Info(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.entry.WithFields(fieldsFromArgs(args)).Warn(msg)
}

func (l *Logger) Error(msg string, args ...any) {
	l.entry.WithFields(fieldsFromArgs(args)).Error(msg)
}

func fieldsFromArgs(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
