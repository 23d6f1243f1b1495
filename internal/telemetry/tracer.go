package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for spans.
// These follow OpenTelemetry semantic conventions where applicable;
// domain-specific keys use "xrpc.", "job." and "session." prefixes.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// XRPC request attributes
	// ========================================================================
	AttrXRPCMethod = "xrpc.method"  // e.g. social.spkeasy.keys.getPublicKey
	AttrXRPCStatus = "xrpc.status"  // HTTP status code
	AttrXRPCKind   = "xrpc.error"   // error kind on failure
	AttrService    = "service.name" // service handling the request
	AttrAuthKind   = "auth.kind"    // user | service

	// ========================================================================
	// Queue job attributes
	// ========================================================================
	AttrJobID      = "job.id"
	AttrJobName    = "job.name"
	AttrJobAttempt = "job.attempt"
	AttrJobState   = "job.state"

	// ========================================================================
	// Session / key attributes
	// ========================================================================
	AttrSessionCount = "session.count"
	AttrKeyPairID    = "keypair.id"
	AttrBatchSize    = "batch.size"
	AttrRecipients   = "recipients.count"

	// ========================================================================
	// Storage attributes
	// ========================================================================
	AttrDBDialect = "db.system"
	AttrDBTable   = "db.table"
)

// Span names.
// Format: <component>.<operation>
const (
	// Root span for XRPC request processing; the method name is attached
	// as an attribute so cardinality stays bounded.
	SpanXRPCRequest = "xrpc.request"

	// Queue spans
	SpanQueueJob     = "queue.job"
	SpanQueuePublish = "queue.publish"

	// Recryption kernel operations
	SpanRecrypt    = "recrypt.recrypt"
	SpanEncryptDEK = "recrypt.encrypt_dek"
	SpanKeygen     = "recrypt.generate_keypair"

	// Identity verification
	SpanVerify     = "identity.verify"
	SpanGetSession = "identity.get_session"

	// Outbound inter-service calls
	SpanServiceCall = "serviceclient.call"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// XRPCMethod returns an attribute for the XRPC method name
func XRPCMethod(method string) attribute.KeyValue {
	return attribute.String(AttrXRPCMethod, method)
}

// XRPCStatus returns an attribute for the HTTP status code
func XRPCStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrXRPCStatus, status)
}

// XRPCErrorKind returns an attribute for the error kind
func XRPCErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrXRPCKind, kind)
}

// Service returns an attribute for the handling service
func Service(name string) attribute.KeyValue {
	return attribute.String(AttrService, name)
}

// AuthKind returns an attribute for the principal kind
func AuthKind(kind string) attribute.KeyValue {
	return attribute.String(AttrAuthKind, kind)
}

// JobID returns an attribute for the queue job id
func JobID(id string) attribute.KeyValue {
	return attribute.String(AttrJobID, id)
}

// JobName returns an attribute for the queue job name
func JobName(name string) attribute.KeyValue {
	return attribute.String(AttrJobName, name)
}

// JobAttempt returns an attribute for the delivery attempt
func JobAttempt(n int) attribute.KeyValue {
	return attribute.Int(AttrJobAttempt, n)
}

// SessionCount returns an attribute for a session fan-out size
func SessionCount(n int) attribute.KeyValue {
	return attribute.Int(AttrSessionCount, n)
}

// KeyPairID returns an attribute for a keypair id
func KeyPairID(id string) attribute.KeyValue {
	return attribute.String(AttrKeyPairID, id)
}

// BatchSize returns an attribute for a processing batch size
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// Recipients returns an attribute for a recipient fan-out size
func Recipients(n int) attribute.KeyValue {
	return attribute.Int(AttrRecipients, n)
}

// StartRequestSpan starts a span for an XRPC request.
func StartRequestSpan(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{XRPCMethod(method)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanXRPCRequest, trace.WithAttributes(allAttrs...))
}

// StartJobSpan starts a span for a queue job execution.
func StartJobSpan(ctx context.Context, name, id string, attempt int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanQueueJob, trace.WithAttributes(
		JobName(name),
		JobID(id),
		JobAttempt(attempt),
	))
}
