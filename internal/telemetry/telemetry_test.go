package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "zipcase", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("CaseNumber", func(t *testing.T) {
		attr := CaseNumber("22CR123456-789")
		assert.Equal(t, AttrCaseNumber, string(attr.Key))
		assert.Equal(t, "22CR123456-789", attr.Value.AsString())
	})

	t.Run("CaseID", func(t *testing.T) {
		attr := CaseID("8675309")
		assert.Equal(t, AttrCaseID, string(attr.Key))
		assert.Equal(t, "8675309", attr.Value.AsString())
	})

	t.Run("FetchStatus", func(t *testing.T) {
		attr := FetchStatus("queued")
		assert.Equal(t, AttrFetchStatus, string(attr.Key))
		assert.Equal(t, "queued", attr.Value.AsString())
	})

	t.Run("SearchID", func(t *testing.T) {
		attr := SearchID("search-abc")
		assert.Equal(t, AttrSearchID, string(attr.Key))
		assert.Equal(t, "search-abc", attr.Value.AsString())
	})

	t.Run("PortalURL", func(t *testing.T) {
		attr := PortalURL("https://portal.example.com/Portal")
		assert.Equal(t, AttrPortalURL, string(attr.Key))
		assert.Equal(t, "https://portal.example.com/Portal", attr.Value.AsString())
	})

	t.Run("PortalStatusCode", func(t *testing.T) {
		attr := PortalStatusCode(405)
		assert.Equal(t, AttrPortalStatusCode, string(attr.Key))
		assert.Equal(t, int64(405), attr.Value.AsInt64())
	})

	t.Run("PortalChallenge", func(t *testing.T) {
		attr := PortalChallenge(true)
		assert.Equal(t, AttrPortalChallenge, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("QueueName", func(t *testing.T) {
		attr := QueueName("search")
		assert.Equal(t, AttrQueueName, string(attr.Key))
		assert.Equal(t, "search", attr.Value.AsString())
	})

	t.Run("MessageGroup", func(t *testing.T) {
		attr := MessageGroup("user-1")
		assert.Equal(t, AttrMessageGroup, string(attr.Key))
		assert.Equal(t, "user-1", attr.Value.AsString())
	})

	t.Run("BatchSize", func(t *testing.T) {
		attr := BatchSize(10)
		assert.Equal(t, AttrBatchSize, string(attr.Key))
		assert.Equal(t, int64(10), attr.Value.AsInt64())
	})

	t.Run("Stage", func(t *testing.T) {
		attr := Stage("data")
		assert.Equal(t, AttrStage, string(attr.Key))
		assert.Equal(t, "data", attr.Value.AsString())
	})

	t.Run("TryCount", func(t *testing.T) {
		attr := TryCount(2)
		assert.Equal(t, AttrTryCount, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})

	t.Run("UserID", func(t *testing.T) {
		attr := UserID("user-42")
		assert.Equal(t, AttrUserID, string(attr.Key))
		assert.Equal(t, "user-42", attr.Value.AsString())
	})

	t.Run("Table", func(t *testing.T) {
		attr := Table("zipcase-data")
		assert.Equal(t, AttrTable, string(attr.Key))
		assert.Equal(t, "zipcase-data", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})
}

func TestStartPortalSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartPortalSpan(ctx, "login")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartPortalSpan(ctx, "search", CaseNumber("22CR123456-789"), PortalStatusCode(200))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartQueueSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartQueueSpan(ctx, "send", "search")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartQueueSpan(ctx, "receive", "data", BatchSize(5))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartStageSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStageSpan(ctx, "search")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartStageSpan(ctx, "data", CaseID("8675309"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
