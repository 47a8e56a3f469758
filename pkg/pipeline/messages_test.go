package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/zipcase"
)

func TestSearchMessageKind(t *testing.T) {
	tests := []struct {
		name string
		msg  SearchMessage
		want Kind
	}{
		{
			name: "tagged case search",
			msg:  SearchMessage{MessageType: "case-search", CaseNumber: "22CR123456-789", UserID: "user-1"},
			want: KindCaseSearch,
		},
		{
			name: "tagged name search",
			msg:  SearchMessage{MessageType: "name-search", SearchID: "s-1", Name: "SMITH, JOHN", UserID: "user-1"},
			want: KindNameSearch,
		},
		{
			name: "untagged case search falls back to field presence",
			msg:  SearchMessage{CaseNumber: "22CR123456-789", UserID: "user-1"},
			want: KindCaseSearch,
		},
		{
			name: "untagged name search falls back to field presence",
			msg:  SearchMessage{SearchID: "s-1", Name: "SMITH, JOHN", UserID: "user-1"},
			want: KindNameSearch,
		},
		{
			name: "search id without a name is not a name search",
			msg:  SearchMessage{SearchID: "s-1", UserID: "user-1"},
			want: KindUnknown,
		},
		{
			name: "empty body",
			msg:  SearchMessage{UserID: "user-1"},
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Kind())
		})
	}
}

func TestCaseSearchQueueMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	qm, err := NewCaseSearchMessage("22cr123456-789", "user-1", "test-agent", now).QueueMessage()
	require.NoError(t, err)

	// FIFO coordinates: serialized per user, deduplicated by the
	// canonical case number.
	assert.Equal(t, "user-1", qm.GroupID)
	assert.Equal(t, "22CR123456-789", qm.DedupID)

	decoded, err := DecodeSearchMessage(qm.Body)
	require.NoError(t, err)
	assert.Equal(t, KindCaseSearch, decoded.Kind())
	assert.Equal(t, "22CR123456-789", decoded.CaseNumber)
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Equal(t, "test-agent", decoded.UserAgent)
	assert.True(t, decoded.Timestamp.Equal(now))
}

func TestNameSearchQueueMessage(t *testing.T) {
	ns := &zipcase.NameSearch{
		NormalizedName: "SMITH, JOHN",
		DateOfBirth:    "1980-05-01",
		SoundsLike:     true,
		CriminalOnly:   true,
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	qm, err := NewNameSearchMessage("search-1", ns, "user-1", "", now).QueueMessage()
	require.NoError(t, err)

	assert.Equal(t, "user-1", qm.GroupID)
	assert.Equal(t, "search-1", qm.DedupID)

	decoded, err := DecodeSearchMessage(qm.Body)
	require.NoError(t, err)
	assert.Equal(t, KindNameSearch, decoded.Kind())
	assert.Equal(t, "search-1", decoded.SearchID)
	assert.Equal(t, "SMITH, JOHN", decoded.Name)
	assert.Equal(t, "1980-05-01", decoded.DateOfBirth)
	assert.True(t, decoded.SoundsLike)
	assert.True(t, decoded.CriminalOnly)
}

func TestSearchQueueMessageRejectsIncomplete(t *testing.T) {
	now := time.Now()

	_, err := SearchMessage{CaseNumber: "22CR123456-789", Timestamp: now}.QueueMessage()
	assert.Error(t, err, "missing user id")

	_, err = SearchMessage{UserID: "user-1", Timestamp: now}.QueueMessage()
	assert.Error(t, err, "no resolvable kind")
}

func TestDecodeSearchMessageRejectsGarbage(t *testing.T) {
	_, err := DecodeSearchMessage([]byte("{not json"))
	assert.Error(t, err)

	_, err = DecodeSearchMessage([]byte(`{"userId":"user-1"}`))
	assert.Error(t, err, "no resolvable kind")

	_, err = DecodeSearchMessage([]byte(`{"caseNumber":"22CR123456-789"}`))
	assert.Error(t, err, "missing user id")
}

func TestCaseDataQueueMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	qm, err := NewCaseDataMessage("22cr123456-789", "CASE-1", "user-1", now).QueueMessage()
	require.NoError(t, err)

	// Grouped by portal case ID so one case is fetched serially.
	assert.Equal(t, "CASE-1", qm.GroupID)
	assert.Equal(t, "22CR123456-789", qm.DedupID)

	decoded, err := DecodeCaseDataMessage(qm.Body)
	require.NoError(t, err)
	assert.Equal(t, "22CR123456-789", decoded.CaseNumber)
	assert.Equal(t, "CASE-1", decoded.CaseID)
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Zero(t, decoded.Attempt)
}

func TestCaseDataRetryGetsDistinctDedupID(t *testing.T) {
	now := time.Now()
	first, err := NewCaseDataMessage("22CR123456-789", "CASE-1", "user-1", now).QueueMessage()
	require.NoError(t, err)
	retry, err := NewCaseDataRetry("22CR123456-789", "CASE-1", "user-1", 2, now).QueueMessage()
	require.NoError(t, err)

	// A retry within the queue's dedup window must not be swallowed as a
	// duplicate of the original enqueue.
	assert.Equal(t, "22CR123456-789", first.DedupID)
	assert.Equal(t, "22CR123456-789#2", retry.DedupID)
	assert.Equal(t, first.GroupID, retry.GroupID)

	decoded, err := DecodeCaseDataMessage(retry.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Attempt)
}

func TestCaseDataQueueMessageRejectsIncomplete(t *testing.T) {
	now := time.Now()

	_, err := CaseDataMessage{CaseID: "CASE-1", UserID: "user-1", Timestamp: now}.QueueMessage()
	assert.Error(t, err, "missing case number")

	_, err = CaseDataMessage{CaseNumber: "22CR123456-789", UserID: "user-1", Timestamp: now}.QueueMessage()
	assert.Error(t, err, "missing case id")
}

func TestDecodeCaseDataMessageRejectsWrongType(t *testing.T) {
	_, err := DecodeCaseDataMessage([]byte(`{"messageType":"case-search","caseNumber":"22CR123456-789","caseId":"CASE-1","userId":"user-1"}`))
	assert.Error(t, err)

	_, err = DecodeCaseDataMessage([]byte(`{"caseNumber":"22CR123456-789","caseId":"CASE-1"}`))
	assert.Error(t, err, "missing user id")

	// Untagged bodies with all fields present decode fine.
	decoded, err := DecodeCaseDataMessage([]byte(`{"caseNumber":"22CR123456-789","caseId":"CASE-1","userId":"user-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "CASE-1", decoded.CaseID)
}
