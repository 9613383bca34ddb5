package logger

import (
	"context"
)

// Leveled adapts the context logger to the leveled interface used by HTTP
// retry clients: Error/Info/Debug/Warn(msg, keysAndValues...).
type Leveled struct {
	ctx context.Context //nolint:containedctx // The adapter outlives no request.
}

// NewLeveled returns an adapter that logs through the logger stored in ctx.
func NewLeveled(ctx context.Context) *Leveled {
	return &Leveled{ctx: ctx}
}

// Error logs at error level.
func (l *Leveled) Error(msg string, kvs ...any) {
	FromContext(l.ctx).Errorw(msg, kvs...)
}

// Info logs at info level.
func (l *Leveled) Info(msg string, kvs ...any) {
	FromContext(l.ctx).Infow(msg, kvs...)
}

// Debug logs at debug level.
func (l *Leveled) Debug(msg string, kvs ...any) {
	FromContext(l.ctx).Debugw(msg, kvs...)
}

// Warn logs at warning level.
func (l *Leveled) Warn(msg string, kvs ...any) {
	FromContext(l.ctx).Warnw(msg, kvs...)
}
