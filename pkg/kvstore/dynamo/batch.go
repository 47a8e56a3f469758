package dynamo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
)

// batchGetChunkSize caps keys per BatchGetItem request. Chunks are
// fetched in parallel and merged.
const batchGetChunkSize = 25

// BatchGet returns the live documents for the given keys. Keys that do
// not exist (or are past their ttl) are omitted from the result.
//
// DynamoDB may return a partial response with unprocessed keys under
// throttling; those are retried with backoff until done or the attempt
// budget runs out.
func (s *DynamoStore) BatchGet(ctx context.Context, keys []kvstore.Key) (result map[kvstore.Key][]byte, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("BatchGetItem", time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	// Collapse duplicates: BatchGetItem rejects repeated keys.
	seen := make(map[kvstore.Key]struct{}, len(keys))
	unique := make([]kvstore.Key, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	results := make(map[kvstore.Key][]byte, len(unique))
	if len(unique) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for chunkStart := 0; chunkStart < len(unique); chunkStart += batchGetChunkSize {
		chunk := unique[chunkStart:min(chunkStart+batchGetChunkSize, len(unique))]
		g.Go(func() error {
			chunkResults, chunkErr := s.batchGetChunk(gctx, chunk)
			if chunkErr != nil {
				return chunkErr
			}
			mu.Lock()
			for k, v := range chunkResults {
				results[k] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("batch get failed: %w", err)
	}
	return results, nil
}

// batchGetChunk fetches one chunk, re-requesting unprocessed keys until
// the chunk is complete or the attempt budget is spent.
func (s *DynamoStore) batchGetChunk(ctx context.Context, keys []kvstore.Key) (map[kvstore.Key][]byte, error) {
	results := make(map[kvstore.Key][]byte, len(keys))

	remaining := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		remaining = append(remaining, keyAttributes(k))
	}

	var lastErr error
	for attempt := 0; len(remaining) > 0 && attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("BatchGetItem retrying",
				"count", len(remaining),
				"attempt", attempt,
				"max_retries", s.retry.maxRetries,
				"backoff", backoff,
				"table", s.table)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.table: {Keys: remaining},
			},
		})
		if err != nil {
			if !isRetryableError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		now := s.clock.Now()
		for _, item := range out.Responses[s.table] {
			key, value, decErr := decodeItem(item, now)
			if decErr != nil {
				return nil, decErr
			}
			if value == nil {
				continue // expired
			}
			results[key] = value
		}

		if kas, ok := out.UnprocessedKeys[s.table]; ok && len(kas.Keys) > 0 {
			remaining = kas.Keys
			lastErr = nil
			continue
		}
		remaining = nil
	}

	if len(remaining) > 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("gave up after %d attempts: %w", s.retry.maxRetries+1, lastErr)
		}
		return nil, fmt.Errorf("%d keys still unprocessed after %d attempts", len(remaining), s.retry.maxRetries+1)
	}
	return results, nil
}
