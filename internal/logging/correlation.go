package logging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type correlationKey struct{}

// NewCorrelationID mints a fresh UUIDv4 correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID stores a correlation ID on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationFrom returns the correlation ID carried by ctx, or "".
func CorrelationFrom(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelation attaches the context's correlation ID to the logger
// as a correlation_id field. Without one the logger passes through.
func WithCorrelation(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := CorrelationFrom(ctx); id != "" {
		return logger.With(zap.String("correlation_id", id))
	}
	return logger
}
