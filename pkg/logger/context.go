package logger

import (
	"context"
	"log/slog"
)

type requestKey struct{}

// request is what the request middleware stores on the context.
type request struct {
	traceID string
	log     *slog.Logger
}

// WithTraceID attaches a request logger tagged with traceID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, requestKey{}, request{
		traceID: traceID,
		log:     From(ctx).With("trace_id", traceID),
	})
}

// With adds fields to the request logger carried by ctx.
func With(ctx context.Context, fields ...any) context.Context {
	req, _ := ctx.Value(requestKey{}).(request)
	req.log = From(ctx).With(fields...)
	return context.WithValue(ctx, requestKey{}, req)
}

// From returns the request logger, falling back to the process logger.
func From(ctx context.Context) *slog.Logger {
	if req, ok := ctx.Value(requestKey{}).(request); ok && req.log != nil {
		return req.log
	}
	return L()
}

// TraceID reports the trace id set by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	req, _ := ctx.Value(requestKey{}).(request)
	return req.traceID
}
