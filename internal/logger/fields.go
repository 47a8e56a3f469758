package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys
// consistently across all log statements so that searches, queues,
// portal calls and HTTP requests can be correlated in log aggregation.
//
// Credential material never goes through these helpers: passwords, API
// keys, cookie values and WAF tokens must not appear in log output at
// any level.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Request identity
	KeyRequestID = "request_id" // HTTP request ID (chi middleware)
	KeyClientIP  = "client_ip"  // Client IP address
	KeyUserID    = "user_id"    // Authenticated user identifier

	// Case domain
	KeyCaseNumber = "case_number" // Canonical case number
	KeyCaseID     = "case_id"     // Portal-assigned case identifier
	KeySearchID   = "search_id"   // Name-search identifier
	KeyStatus     = "status"      // Fetch status after a transition
	KeyCount      = "count"       // Generic element count

	// Queue plumbing
	KeyQueue     = "queue"      // Queue name or URL
	KeyMessageID = "message_id" // Broker-assigned message ID
	KeyGroupID   = "group_id"   // FIFO ordering group
	KeyStage     = "stage"      // Pipeline stage: search, data

	// Portal calls
	KeyURL        = "url"         // Request URL (never includes credentials)
	KeyStatusCode = "status_code" // HTTP response status code

	// Storage
	KeyTable     = "table"      // KV table name
	KeyStoreType = "store_type" // Store backend: memory, badger, dynamo
	KeyBucket    = "bucket"     // S3 bucket for uploads
	KeyKey       = "key"        // Composite storage key or object key

	// Operation metadata
	KeyOperation  = "operation"   // Operation name for stores and clients
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
)

// Field constructors for type safety.

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for the HTTP request ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// UserID returns a slog.Attr for the authenticated user.
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// CaseNumber returns a slog.Attr for a canonical case number.
func CaseNumber(n string) slog.Attr {
	return slog.String(KeyCaseNumber, n)
}

// CaseID returns a slog.Attr for a portal case identifier.
func CaseID(id string) slog.Attr {
	return slog.String(KeyCaseID, id)
}

// SearchID returns a slog.Attr for a name-search identifier.
func SearchID(id string) slog.Attr {
	return slog.String(KeySearchID, id)
}

// Status returns a slog.Attr for a fetch status.
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// Count returns a slog.Attr for an element count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Queue returns a slog.Attr for a queue name or URL.
func Queue(name string) slog.Attr {
	return slog.String(KeyQueue, name)
}

// MessageID returns a slog.Attr for a broker message ID.
func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

// GroupID returns a slog.Attr for a FIFO ordering group.
func GroupID(id string) slog.Attr {
	return slog.String(KeyGroupID, id)
}

// Stage returns a slog.Attr for a pipeline stage name.
func Stage(s string) slog.Attr {
	return slog.String(KeyStage, s)
}

// URL returns a slog.Attr for a request URL.
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// StatusCode returns a slog.Attr for an HTTP status code.
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Table returns a slog.Attr for a KV table name.
func Table(name string) slog.Attr {
	return slog.String(KeyTable, name)
}

// StoreType returns a slog.Attr for a store backend type.
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for an S3 bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for a storage key.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Operation returns a slog.Attr for an operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
