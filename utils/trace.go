package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recordstore/logging"
)

// ContextKey keys values this module stores on a context.
type ContextKey string

const (
	// TraceIDKey holds the request trace ID on a context.
	TraceIDKey ContextKey = "traceId"

	// TraceIDHeader carries the trace ID on HTTP requests and responses.
	TraceIDHeader = "X-Trace-Id"

	maxTraceIDLen = 128
)

// GenerateTraceID returns 32 hex characters of randomness.
func GenerateTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "trace-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(b[:])
}

// WithTraceID stores traceID on ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reports the trace ID on ctx. An empty ID counts as absent.
func GetTraceID(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id, id != ""
}

// EnsureTraceID returns ctx unchanged when it already has a trace ID and
// otherwise a child context carrying a fresh one.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id, ok := GetTraceID(ctx); ok {
		return ctx, id
	}
	id := GenerateTraceID()
	return WithTraceID(ctx, id), id
}

// TraceIDFromRequest reads the caller-supplied trace ID header. Oversized or
// blank values are ignored.
func TraceIDFromRequest(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(TraceIDHeader))
	if id == "" || len(id) > maxTraceIDLen {
		return "", false
	}
	return id, true
}

// WithTraceLogger tags logger with the trace ID on ctx, if any.
func WithTraceLogger(logger logging.Logger, ctx context.Context) logging.Logger {
	id, ok := GetTraceID(ctx)
	if !ok {
		return logger
	}
	return logger.WithField(string(TraceIDKey), id)
}
