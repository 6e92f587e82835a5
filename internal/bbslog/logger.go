// Package bbslog wraps zap the way the teacher's pkg/logger wraps it: a
// thin, named, field-friendly logger passed by reference into every
// component instead of a package-level global.
package bbslog

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the structured logger threaded through Store, SessionSvc,
// AppRegistry, RemoteLoader, and Shell.
type Logger struct {
	name string
	zap  *zap.SugaredLogger
}

// NewDefault builds a production JSON logger named for the owning
// component, mirroring logger.NewDefault(name) call sites such as
// functions.New(...).
func NewDefault(name string) *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{name: name, zap: base.Sugar().Named(name)}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{name: "nop", zap: zap.NewNop().Sugar()}
}

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{name: l.name, zap: l.zap.With(kv...)}
}

func (l *Logger) WithContext(_ context.Context) *Logger { return l }

func (l *Logger) Debug(msg string, kv ...any) { l.zap.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.zap.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.zap.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.zap.Errorw(msg, kv...) }
