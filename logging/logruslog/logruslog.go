// Package logruslog adapts logrus to the core.Logger interface.
//
// The core package deliberately logs through its own small interface so the
// scheduler does not force a logging library on its host. This package is
// the production binding for hosts that already run logrus.
package logruslog

import (
	"github.com/sirupsen/logrus"

	"github.com/go-dispatch/dispatch/core"
)

// Logger forwards core.Logger calls to a logrus.Logger, mapping Field pairs
// to logrus.Fields.
type Logger struct {
	logger *logrus.Logger
}

// New wraps the given logrus logger. A nil logger falls back to the logrus
// standard logger.
func New(logger *logrus.Logger) *Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Logger{logger: logger}
}

// NewStandard wraps the process-wide logrus standard logger.
func NewStandard() *Logger {
	return New(logrus.StandardLogger())
}

// Underlying returns the wrapped logrus logger, for level or formatter tuning.
func (l *Logger) Underlying() *logrus.Logger {
	return l.logger
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.entry(fields).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.entry(fields).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.entry(fields).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.entry(fields).Error(msg)
}

func (l *Logger) entry(fields []core.Field) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(l.logger)
	}
	logrusFields := make(logrus.Fields, len(fields))
	for _, f := range fields {
		logrusFields[f.Key] = f.Value
	}
	return l.logger.WithFields(logrusFields)
}
