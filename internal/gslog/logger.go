// Package gslog provides the contextual, per-module logger used across the
// gas station: every package grabs its own named logger and attaches
// key/value fields to individual log lines rather than to the logger
// itself.
package gslog

import (
	"go.uber.org/zap"
)

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	return l
}

// Logger is a thin, contextual wrapper around a zap.SugaredLogger, scoped to
// a single module name (e.g. "storage.redis", "initializer").
type Logger struct {
	s *zap.SugaredLogger
}

// New returns a logger tagged with the given module name.
func New(module string) *Logger {
	return &Logger{s: base.Sugar().With("module", module)}
}

// With returns a derived logger with additional key/value fields attached.
func (l *Logger) With(kvs ...interface{}) *Logger {
	return &Logger{s: l.s.With(kvs...)}
}

func (l *Logger) Debug(msg string, kvs ...interface{}) { l.s.Debugw(msg, kvs...) }
func (l *Logger) Info(msg string, kvs ...interface{})  { l.s.Infow(msg, kvs...) }
func (l *Logger) Warn(msg string, kvs ...interface{})  { l.s.Warnw(msg, kvs...) }
func (l *Logger) Error(msg string, kvs ...interface{}) { l.s.Errorw(msg, kvs...) }

// SetForTesting swaps in a no-op logger as the base for loggers created by
// New after the call. Loggers already created, such as the package-level
// loggers built at init time, keep writing through the original base.
// Tests that want to assert on log output should not rely on this package.
func SetForTesting() {
	base = zap.NewNop()
}
