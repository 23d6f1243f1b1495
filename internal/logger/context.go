package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	RequestID string    // Router request ID
	Method    string    // XRPC method NSID (social.spkeasy.keys.getPublicKey, etc.)
	Service   string    // Service principal name when the caller is a service
	CallerDID string    // Caller DID; anonymized before it reaches any log line
	ClientIP  string    // Client IP address (without port)
	JobID     string    // Queue job ID for worker-scoped logging
	JobName   string    // Queue job name
	Attempt   int       // Queue delivery attempt
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// NewJobContext creates a LogContext scoped to a queue job
func NewJobContext(jobID, jobName string, attempt int) *LogContext {
	return &LogContext{
		JobID:     jobID,
		JobName:   jobName,
		Attempt:   attempt,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		RequestID: lc.RequestID,
		Method:    lc.Method,
		Service:   lc.Service,
		CallerDID: lc.CallerDID,
		ClientIP:  lc.ClientIP,
		JobID:     lc.JobID,
		JobName:   lc.JobName,
		Attempt:   lc.Attempt,
		StartTime: lc.StartTime,
	}
}

// WithMethod returns a copy with the XRPC method set
func (lc *LogContext) WithMethod(method string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Method = method
	}
	return clone
}

// WithCaller returns a copy with the caller principal set.
// did is empty for service principals, service is empty for users.
func (lc *LogContext) WithCaller(did, service string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CallerDID = did
		clone.Service = service
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// WithRequestID returns a copy with the request ID set
func (lc *LogContext) WithRequestID(requestID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RequestID = requestID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
