package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

var std = logrus.New()

// SetLevel adjusts the level of the package-wide logger.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// SetFormatter replaces the formatter of the package-wide logger.
func SetFormatter(f logrus.Formatter) {
	std.SetFormatter(f)
}

// Logger returns the entry carried by ctx, or a fresh entry on the
// package-wide logger when ctx carries none.
func Logger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(std)
}

// WithContext returns a child context carrying the given entry, so request
// scoped fields follow the call chain.
func WithContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, entry)
}
