package logger

import (
	"log/slog"
	"strings"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so logs stay
// queryable in aggregation. DID-valued fields must go through the
// anonymizing constructors below; raw DIDs never appear in log output.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request & Method
	// ========================================================================
	KeyRequestID = "request_id" // Router-assigned request ID
	KeyMethod    = "method"     // XRPC method NSID
	KeyStatus    = "status"     // HTTP status code
	KeyErrorKind = "error_kind" // Wire error kind (NotFound, NotAuthorized, ...)
	KeyClientIP  = "client_ip"  // Client IP address

	// ========================================================================
	// Principals
	// ========================================================================
	KeyCaller   = "caller"    // Anonymized caller DID
	KeyService  = "service"   // Service principal name (private-sessions, ...)
	KeyAuthKind = "auth_kind" // How the caller authenticated: user, service

	// ========================================================================
	// Identity & Federation
	// ========================================================================
	KeyDID       = "did"       // Anonymized subject DID
	KeyAuthor    = "author"    // Anonymized author DID (trust graph, sessions)
	KeyRecipient = "recipient" // Anonymized recipient DID
	KeyHost      = "host"      // PDS host under federation checks
	KeyHandle    = "handle"    // atproto handle (public identifier)

	// ========================================================================
	// Keys & Sessions
	// ========================================================================
	KeySessionID  = "session_id" // Session UUID
	KeyKeyPairID  = "keypair_id" // User keypair UUID
	KeyAudience   = "audience"   // Consuming service name
	KeyRecipients = "recipients" // Number of recipients affected

	// ========================================================================
	// Queue & Jobs
	// ========================================================================
	KeyJobID    = "job_id"    // Queue job UUID
	KeyJobName  = "job_name"  // Queue job name (private-sessions.revoke-session, ...)
	KeyJobState = "job_state" // Job state: created, active, completed, failed
	KeyAttempt  = "attempt"   // Delivery attempt, starting at 1
	KeyBatch    = "batch"     // Batch size for bulk operations

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCount      = "count"       // Generic count
	KeyURL        = "url"         // Upstream URL (scheme://host/path, no query)
	KeyDialect    = "dialect"     // Database dialect: sqlite, postgres
	KeyComponent  = "component"   // Subsystem emitting the line
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for the router request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ----------------------------------------------------------------------------
// Request & Method
// ----------------------------------------------------------------------------

// Method returns a slog.Attr for an XRPC method NSID
func Method(nsid string) slog.Attr {
	return slog.String(KeyMethod, nsid)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ErrorKind returns a slog.Attr for a wire error kind
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// ----------------------------------------------------------------------------
// Principals (DID-valued fields are anonymized)
// ----------------------------------------------------------------------------

// Caller returns a slog.Attr for the caller principal, anonymized
func Caller(did string) slog.Attr {
	return slog.String(KeyCaller, Anonymize(did))
}

// Service returns a slog.Attr for a service principal name
func Service(name string) slog.Attr {
	return slog.String(KeyService, name)
}

// AuthKind returns a slog.Attr for the authentication kind
func AuthKind(kind string) slog.Attr {
	return slog.String(KeyAuthKind, kind)
}

// DID returns a slog.Attr for a subject DID, anonymized
func DID(did string) slog.Attr {
	return slog.String(KeyDID, Anonymize(did))
}

// Author returns a slog.Attr for an author DID, anonymized
func Author(did string) slog.Attr {
	return slog.String(KeyAuthor, Anonymize(did))
}

// Recipient returns a slog.Attr for a recipient DID, anonymized
func Recipient(did string) slog.Attr {
	return slog.String(KeyRecipient, Anonymize(did))
}

// Host returns a slog.Attr for a PDS host
func Host(host string) slog.Attr {
	return slog.String(KeyHost, host)
}

// Handle returns a slog.Attr for an atproto handle.
// Handles are public identifiers and are logged as-is.
func Handle(handle string) slog.Attr {
	return slog.String(KeyHandle, handle)
}

// ----------------------------------------------------------------------------
// Keys & Sessions
// ----------------------------------------------------------------------------

// SessionID returns a slog.Attr for a session UUID
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// KeyPairID returns a slog.Attr for a user keypair UUID
func KeyPairID(id string) slog.Attr {
	return slog.String(KeyKeyPairID, id)
}

// Audience returns a slog.Attr for a consuming service name
func Audience(aud string) slog.Attr {
	return slog.String(KeyAudience, aud)
}

// Recipients returns a slog.Attr for a recipient count
func Recipients(n int) slog.Attr {
	return slog.Int(KeyRecipients, n)
}

// ----------------------------------------------------------------------------
// Queue & Jobs
// ----------------------------------------------------------------------------

// JobID returns a slog.Attr for a queue job UUID
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// JobName returns a slog.Attr for a queue job name
func JobName(name string) slog.Attr {
	return slog.String(KeyJobName, name)
}

// JobState returns a slog.Attr for a job state
func JobState(state string) slog.Attr {
	return slog.String(KeyJobState, state)
}

// Attempt returns a slog.Attr for a delivery attempt
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Batch returns a slog.Attr for a batch size
func Batch(n int) slog.Attr {
	return slog.Int(KeyBatch, n)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// Err returns a slog.Attr for an error, or an empty attr for nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for elapsed time since start in milliseconds
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Count returns a slog.Attr for a generic count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// URL returns a slog.Attr for an upstream URL with any query string stripped
func URL(u string) slog.Attr {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return slog.String(KeyURL, u)
}

// Dialect returns a slog.Attr for a database dialect
func Dialect(d string) slog.Attr {
	return slog.String(KeyDialect, d)
}

// Component returns a slog.Attr for the subsystem emitting the line
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}
