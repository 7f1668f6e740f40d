// Package logging carries a zap logger through context so every layer logs
// with the fields accumulated by its callers (job id, source, ...).
package logging

import (
	"context"

	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger installs the process-wide fallback logger used when a context
// carries none.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

type ctxKey struct{}

// FromContext returns the logger stored in ctx, or the fallback logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return logger
}

// FromContextS is FromContext in sugared form.
func FromContextS(ctx context.Context) *zap.SugaredLogger {
	return FromContext(ctx).Sugar()
}

// NewContextS returns a child context whose logger carries the extra
// key/value fields.
func NewContextS(ctx context.Context, fields ...interface{}) context.Context {
	nctx, _ := NewContextSL(ctx, fields...)
	return nctx
}

// NewContextSL is NewContextS that also hands back the enriched logger.
func NewContextSL(ctx context.Context, fields ...interface{}) (context.Context, *zap.SugaredLogger) {
	slog := FromContextS(ctx).With(fields...)
	return context.WithValue(ctx, ctxKey{}, slog.Desugar()), slog
}

// CopyContext moves the logger of one context onto another. Used when work
// outlives the request context it was started from.
func CopyContext(from, to context.Context) context.Context {
	return context.WithValue(to, ctxKey{}, FromContext(from))
}
