package dynamo

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

// fakeClient implements Client with overridable behavior per test.
type fakeClient struct {
	mu sync.Mutex

	getItem      func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem      func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	deleteItem   func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	batchGetItem func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
}

func (f *fakeClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getItem(params)
}

func (f *fakeClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putItem(params)
}

func (f *fakeClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteItem(params)
}

func (f *fakeClient) BatchGetItem(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchGetItem(params)
}

func newTestStore(client *fakeClient) *DynamoStore {
	return New(client, Config{TableName: "cases-test"})
}

func TestGetStripsStorageAttributes(t *testing.T) {
	client := &fakeClient{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			assert.Equal(t, "cases-test", *in.TableName)
			return &dynamodb.GetItemOutput{
				Item: map[string]types.AttributeValue{
					"PK":         &types.AttributeValueMemberS{Value: "CASE#22CR714844-590"},
					"SK":         &types.AttributeValueMemberS{Value: "ID"},
					"caseNumber": &types.AttributeValueMemberS{Value: "22CR714844-590"},
					"caseId":     &types.AttributeValueMemberS{Value: "abc123"},
				},
			}, nil
		},
	}
	store := newTestStore(client)

	value, err := store.Get(context.Background(), kvstore.Key{PK: "CASE#22CR714844-590", SK: "ID"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"caseNumber":"22CR714844-590","caseId":"abc123"}`, string(value))
}

func TestGetMissingItem(t *testing.T) {
	client := &fakeClient{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	store := newTestStore(client)

	_, err := store.Get(context.Background(), kvstore.Key{PK: "CASE#X", SK: "ID"})
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestGetExpiredItem(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	client := &fakeClient{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{
				Item: map[string]types.AttributeValue{
					"PK":        &types.AttributeValueMemberS{Value: "USER#u1"},
					"SK":        &types.AttributeValueMemberS{Value: "SESSION"},
					"ttl":       &types.AttributeValueMemberN{Value: "1740830400"}, // before now
					"cookieJar": &types.AttributeValueMemberS{Value: "{}"},
				},
			}, nil
		},
	}
	store := newTestStore(client).WithClock(clockwork.NewFakeClockAt(now))

	_, err := store.Get(context.Background(), kvstore.Key{PK: "USER#u1", SK: "SESSION"})
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestPutFlattensDocument(t *testing.T) {
	var captured *dynamodb.PutItemInput
	client := &fakeClient{
		putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			captured = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	store := newTestStore(client)

	err := store.Put(context.Background(), kvstore.Key{PK: "CASE#22CR714844-590", SK: "ID"},
		[]byte(`{"caseNumber":"22CR714844-590","caseId":"abc123"}`))
	require.NoError(t, err)
	require.NotNil(t, captured)

	pk := captured.Item["PK"].(*types.AttributeValueMemberS)
	sk := captured.Item["SK"].(*types.AttributeValueMemberS)
	caseID := captured.Item["caseId"].(*types.AttributeValueMemberS)
	assert.Equal(t, "CASE#22CR714844-590", pk.Value)
	assert.Equal(t, "ID", sk.Value)
	assert.Equal(t, "abc123", caseID.Value)
	_, hasTTL := captured.Item["ttl"]
	assert.False(t, hasTTL, "plain Put must not set a ttl")
}

func TestPutWithTTLSetsEpoch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var captured *dynamodb.PutItemInput
	client := &fakeClient{
		putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			captured = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	store := newTestStore(client).WithClock(clockwork.NewFakeClockAt(now))

	err := store.PutWithTTL(context.Background(), kvstore.Key{PK: "USER#u1", SK: "SESSION"},
		[]byte(`{"cookieJar":"{}"}`), time.Hour)
	require.NoError(t, err)

	ttl := captured.Item["ttl"].(*types.AttributeValueMemberN)
	assert.Equal(t, "1740834000", ttl.Value) // now + 1h as epoch seconds
}

func TestPutRejectsNonObjectDocument(t *testing.T) {
	client := &fakeClient{
		putItem: func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			t.Fatal("PutItem must not be called for invalid documents")
			return nil, nil
		},
	}
	store := newTestStore(client)

	err := store.Put(context.Background(), kvstore.Key{PK: "X", SK: "Y"}, []byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestGetRetriesThrottling(t *testing.T) {
	calls := 0
	client := &fakeClient{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			calls++
			if calls < 3 {
				return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
			}
			return &dynamodb.GetItemOutput{
				Item: map[string]types.AttributeValue{
					"PK":   &types.AttributeValueMemberS{Value: "USER#u1"},
					"SK":   &types.AttributeValueMemberS{Value: "API_KEY"},
					"kind": &types.AttributeValueMemberS{Value: "api-key"},
				},
			}, nil
		},
	}
	store := newTestStore(client)

	value, err := store.Get(context.Background(), kvstore.Key{PK: "USER#u1", SK: "API_KEY"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"api-key"}`, string(value))
	assert.Equal(t, 3, calls)
}

func TestGetDoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	client := &fakeClient{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			calls++
			return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "bad key"}
		},
	}
	store := newTestStore(client)

	_, err := store.Get(context.Background(), kvstore.Key{PK: "USER#u1", SK: "API_KEY"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBatchGetChunksAndMerges(t *testing.T) {
	// 60 unique keys must arrive as chunks of at most 25.
	keys := make([]kvstore.Key, 0, 60)
	for i := 0; i < 60; i++ {
		keys = append(keys, kvstore.Key{PK: "CASE#" + strconv.Itoa(i), SK: "ID"})
	}
	// Add duplicates; they must collapse before chunking.
	keys = append(keys, keys[0], keys[1])

	var chunkSizes []int
	client := &fakeClient{}
	client.batchGetItem = func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
		kas := in.RequestItems["cases-test"]
		chunkSizes = append(chunkSizes, len(kas.Keys))

		items := make([]map[string]types.AttributeValue, 0, len(kas.Keys))
		for _, k := range kas.Keys {
			pk := k["PK"].(*types.AttributeValueMemberS).Value
			items = append(items, map[string]types.AttributeValue{
				"PK":     &types.AttributeValueMemberS{Value: pk},
				"SK":     &types.AttributeValueMemberS{Value: "ID"},
				"caseId": &types.AttributeValueMemberS{Value: "id-" + pk},
			})
		}
		return &dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]types.AttributeValue{"cases-test": items},
		}, nil
	}
	store := newTestStore(client)

	results, err := store.BatchGet(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, results, 60)

	total := 0
	for _, size := range chunkSizes {
		assert.LessOrEqual(t, size, 25)
		total += size
	}
	assert.Equal(t, 60, total, "duplicates must not be re-fetched")
}

func TestBatchGetRetriesUnprocessedKeys(t *testing.T) {
	key := kvstore.Key{PK: "CASE#22CR714844-590", SK: "SUMMARY"}

	calls := 0
	client := &fakeClient{}
	client.batchGetItem = func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
		calls++
		if calls == 1 {
			// Nothing processed on the first call.
			return &dynamodb.BatchGetItemOutput{
				UnprocessedKeys: map[string]types.KeysAndAttributes{
					"cases-test": {Keys: in.RequestItems["cases-test"].Keys},
				},
			}, nil
		}
		return &dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]types.AttributeValue{
				"cases-test": {{
					"PK":       &types.AttributeValueMemberS{Value: key.PK},
					"SK":       &types.AttributeValueMemberS{Value: key.SK},
					"caseName": &types.AttributeValueMemberS{Value: "STATE VS DOE"},
				}},
			},
		}, nil
	}
	store := newTestStore(client)

	results, err := store.BatchGet(context.Background(), []kvstore.Key{key})
	require.NoError(t, err)
	require.Contains(t, results, key)
	assert.JSONEq(t, `{"caseName":"STATE VS DOE"}`, string(results[key]))
	assert.Equal(t, 2, calls)
}

func TestBatchGetSkipsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	live := kvstore.Key{PK: "NAMESEARCH#a", SK: "ID"}
	dead := kvstore.Key{PK: "NAMESEARCH#b", SK: "ID"}

	client := &fakeClient{}
	client.batchGetItem = func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
		return &dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]types.AttributeValue{
				"cases-test": {
					{
						"PK":     &types.AttributeValueMemberS{Value: live.PK},
						"SK":     &types.AttributeValueMemberS{Value: live.SK},
						"ttl":    &types.AttributeValueMemberN{Value: "1740837600"}, // after now
						"status": &types.AttributeValueMemberS{Value: "complete"},
					},
					{
						"PK":     &types.AttributeValueMemberS{Value: dead.PK},
						"SK":     &types.AttributeValueMemberS{Value: dead.SK},
						"ttl":    &types.AttributeValueMemberN{Value: "1740830400"}, // before now
						"status": &types.AttributeValueMemberS{Value: "complete"},
					},
				},
			},
		}, nil
	}
	store := newTestStore(client).WithClock(clockwork.NewFakeClockAt(now))

	results, err := store.BatchGet(context.Background(), []kvstore.Key{live, dead})
	require.NoError(t, err)
	assert.Contains(t, results, live)
	assert.NotContains(t, results, dead)
}
