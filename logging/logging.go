// Package logging carries a zap.Logger through context.Context: attach
// fields to a context, pull a logger back out of it at the RPC
// boundary.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	fieldsKey ctxKey = iota
	loggerKey
)

// New builds a production zap.Logger at the requested level ("debug",
// "info", "warn", "error"). Unrecognized levels fall back to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// WithFields appends structured fields onto whatever fields the
// context already carries.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, fieldsKey, append(Fields(ctx), fields...))
}

// Fields extracts the accumulated fields from a context.
func Fields(ctx context.Context) []zap.Field {
	raw := ctx.Value(fieldsKey)
	if raw == nil {
		return nil
	}
	fields, ok := raw.([]zap.Field)
	if !ok {
		return nil
	}
	return fields
}

// WithLogger attaches a base logger to the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context's logger enriched with its
// accumulated fields, falling back to def if none was attached.
func FromContext(ctx context.Context, def *zap.Logger) *zap.Logger {
	raw := ctx.Value(loggerKey)
	logger, ok := raw.(*zap.Logger)
	if !ok || logger == nil {
		logger = def
	}
	return logger.With(Fields(ctx)...)
}
