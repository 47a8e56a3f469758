package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for case lookup operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Domain-agnostic keys use their component prefix ("portal.", "queue.",
// "case."), HTTP keys follow the standard semconv names.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Case attributes
	// ========================================================================
	AttrCaseNumber  = "case.number"
	AttrCaseID      = "case.id"
	AttrFetchStatus = "case.fetch_status"
	AttrSearchID    = "search.id"

	// ========================================================================
	// Portal attributes
	// ========================================================================
	AttrPortalURL        = "portal.url"
	AttrPortalOperation  = "portal.operation"
	AttrPortalStatusCode = "portal.status_code"
	AttrPortalChallenge  = "portal.challenge"

	// ========================================================================
	// Queue attributes
	// ========================================================================
	AttrQueueName    = "queue.name"
	AttrMessageID    = "queue.message_id"
	AttrMessageGroup = "queue.group_id"
	AttrBatchSize    = "queue.batch_size"

	// ========================================================================
	// Pipeline attributes
	// ========================================================================
	AttrStage    = "pipeline.stage"
	AttrDecision = "pipeline.decision"
	AttrTryCount = "pipeline.try_count"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUserID   = "user.id"
	AttrUsername = "user.name"
	AttrAuth     = "auth.method"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrTable     = "storage.table"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Portal spans
	// ========================================================================

	// Root span for a full portal authentication handshake
	SpanPortalLogin = "portal.login"

	SpanPortalLoginPage    = "portal.login_page"
	SpanPortalWAFChallenge = "portal.waf_challenge"
	SpanPortalTokenRelay   = "portal.token_relay"
	SpanPortalVerify       = "portal.verify"
	SpanPortalSearch       = "portal.search"
	SpanPortalNameSearch   = "portal.name_search"
	SpanPortalCaseSummary  = "portal.case_summary"

	// ========================================================================
	// Queue spans
	// ========================================================================
	SpanQueueSend    = "queue.send"
	SpanQueueReceive = "queue.receive"
	SpanQueueDelete  = "queue.delete"

	// ========================================================================
	// Pipeline spans
	// ========================================================================
	SpanPipelineClassify = "pipeline.classify"
	SpanSearchStage      = "pipeline.search"
	SpanDataStage        = "pipeline.data"

	// ========================================================================
	// Store spans
	// ========================================================================
	SpanStoreGet      = "store.get"
	SpanStoreBatchGet = "store.batch_get"
	SpanStorePut      = "store.put"
	SpanStoreDelete   = "store.delete"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// CaseNumber returns an attribute for a normalized case number
func CaseNumber(number string) attribute.KeyValue {
	return attribute.String(AttrCaseNumber, number)
}

// CaseID returns an attribute for a portal case identifier
func CaseID(id string) attribute.KeyValue {
	return attribute.String(AttrCaseID, id)
}

// FetchStatus returns an attribute for a case fetch status
func FetchStatus(status string) attribute.KeyValue {
	return attribute.String(AttrFetchStatus, status)
}

// SearchID returns an attribute for a name search identifier
func SearchID(id string) attribute.KeyValue {
	return attribute.String(AttrSearchID, id)
}

// PortalURL returns an attribute for the portal endpoint being called
func PortalURL(url string) attribute.KeyValue {
	return attribute.String(AttrPortalURL, url)
}

// PortalOperation returns an attribute for the portal operation name
func PortalOperation(op string) attribute.KeyValue {
	return attribute.String(AttrPortalOperation, op)
}

// PortalStatusCode returns an attribute for the portal HTTP status code
func PortalStatusCode(code int) attribute.KeyValue {
	return attribute.Int(AttrPortalStatusCode, code)
}

// PortalChallenge returns an attribute indicating a bot challenge was served
func PortalChallenge(challenged bool) attribute.KeyValue {
	return attribute.Bool(AttrPortalChallenge, challenged)
}

// QueueName returns an attribute for the queue being operated on
func QueueName(name string) attribute.KeyValue {
	return attribute.String(AttrQueueName, name)
}

// MessageID returns an attribute for a queue message ID
func MessageID(id string) attribute.KeyValue {
	return attribute.String(AttrMessageID, id)
}

// MessageGroup returns an attribute for a message group ID
func MessageGroup(group string) attribute.KeyValue {
	return attribute.String(AttrMessageGroup, group)
}

// BatchSize returns an attribute for a queue batch size
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// Stage returns an attribute for the pipeline stage ("search" or "data")
func Stage(stage string) attribute.KeyValue {
	return attribute.String(AttrStage, stage)
}

// Decision returns an attribute for a coordinator classification decision
func Decision(decision string) attribute.KeyValue {
	return attribute.String(AttrDecision, decision)
}

// TryCount returns an attribute for a reprocessing attempt count
func TryCount(n int) attribute.KeyValue {
	return attribute.Int(AttrTryCount, n)
}

// UserID returns an attribute for a user identifier
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StoreName returns an attribute for store name
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Table returns an attribute for a DynamoDB table name
func Table(name string) attribute.KeyValue {
	return attribute.String(AttrTable, name)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartPortalSpan starts a span for a portal operation.
// This is a convenience function that sets common attributes.
func StartPortalSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		PortalOperation(operation),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "portal."+operation, trace.WithAttributes(allAttrs...))
}

// StartQueueSpan starts a span for a queue operation.
func StartQueueSpan(ctx context.Context, operation string, queue string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		QueueName(queue),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "queue."+operation, trace.WithAttributes(allAttrs...))
}

// StartStageSpan starts a span for a pipeline stage handling one message.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Stage(stage),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "pipeline."+stage, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a key-value store operation.
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "store."+operation, trace.WithAttributes(attrs...))
}
