package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

const contextLoggerKey = "_logger"

// WithLogger attaches a contextual logger to ctx for downstream operations.
func WithLogger(ctx context.Context, entry logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextLoggerKey, entry)
}

// FromContext returns the contextual logger, or the standard logger if none is attached.
func FromContext(ctx context.Context) logrus.FieldLogger {
	entry, ok := ctx.Value(contextLoggerKey).(logrus.FieldLogger)
	if !ok {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return entry
}

// Init configures the standard logger from config values.
func Init(level, format string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
