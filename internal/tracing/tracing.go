package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinichub/clinichub/internal/contexts"
)

type Config struct {
	// RequestHeader is the inbound header carrying a caller-supplied request id.
	RequestHeader string `conf:"request_header" yaml:"request_header" json:"request_header"`
	// TraceHeader is the inbound header carrying a caller-supplied trace id.
	TraceHeader string `conf:"trace_header" yaml:"trace_header" json:"trace_header"`
}

// GenerateTraceID generates a trace id, formatted as ch-{{uuid}}.
func GenerateTraceID() string {
	id := uuid.New()
	return fmt.Sprintf("ch-%s", id.String())
}

// GenerateRequestID generates a request id, formatted as req-{{uuid}}.
func GenerateRequestID() string {
	id := uuid.New()
	return fmt.Sprintf("req-%s", id.String())
}

// WithTraceID stores the trace id in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return contexts.WithTraceID(ctx, traceID)
}

// GetTraceID gets the trace id from the context.
func GetTraceID(ctx context.Context) (string, bool) {
	return contexts.GetTraceID(ctx)
}

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return contexts.WithRequestID(ctx, requestID)
}

// GetRequestID gets the request id from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	return contexts.GetRequestID(ctx)
}

// WithOperationName stores the operation name in the context.
func WithOperationName(ctx context.Context, name string) context.Context {
	return contexts.WithOperationName(ctx, name)
}

// GetOperationName gets the operation name from the context.
func GetOperationName(ctx context.Context) (string, bool) {
	return contexts.GetOperationName(ctx)
}
