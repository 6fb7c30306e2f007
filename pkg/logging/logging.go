// Package logging builds the logrus logger used by the binaries and adapts it
// to the key/value logger interface of the Temporal SDK.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/log"
)

// New creates a logrus logger writing to stderr.
// format is "text" (default) or "json".
func New(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}

// NewNullLogger creates a logger where log lines are discarded
func NewNullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TemporalLogger implements log.Logger on top of logrus
type TemporalLogger struct {
	entry *logrus.Entry
}

var _ log.Logger = (*TemporalLogger)(nil)
var _ log.WithLogger = (*TemporalLogger)(nil)

// NewTemporalLogger adapts a logrus logger
func NewTemporalLogger(logger logrus.FieldLogger) *TemporalLogger {
	return &TemporalLogger{entry: logger.WithFields(logrus.Fields{})}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Info(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Error(msg)
}

// With returns a logger that always adds keyvals
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{entry: l.entry.WithFields(fields(keyvals))}
}

// fields converts alternating key/value pairs. A trailing key without a value
// is kept under "EXTRA_VALUE_AT_END".
func fields(keyvals []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			f["EXTRA_VALUE_AT_END"] = keyvals[i]
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		f[key] = keyvals[i+1]
	}
	return f
}
