// Package dynamo implements the kvstore contract on DynamoDB.
//
// Records live in one table keyed by the PK and SK string attributes.
// The stored JSON document is flattened into item attributes, so records
// stay queryable from the AWS console; the key attributes and the ttl
// expiry attribute are storage bookkeeping and are stripped before a
// document is returned. Documents must not use the reserved attribute
// names PK, SK and ttl.
//
// Expiry is written as an epoch-seconds ttl attribute, matching the
// table's DynamoDB TTL configuration. DynamoDB reaps expired items
// lazily (sometimes days late), so every read also checks the attribute
// and treats expired items as absent.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
)

// Client is the subset of the DynamoDB API the store uses. Production
// code passes *dynamodb.Client; tests pass a fake.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// Config holds DynamoDB store configuration.
type Config struct {
	// TableName is the table holding all records. Required.
	TableName string `mapstructure:"table_name"`

	// Region is the AWS region. Defaults to the SDK's resolution chain.
	Region string `mapstructure:"region"`

	// Endpoint overrides the DynamoDB endpoint (localstack).
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey provide static credentials,
	// used with localstack. Production deployments leave them empty and
	// rely on the default credential chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// MaxRetries bounds retries of throttled or transient failures on
	// top of the SDK's own retryer. Defaults to 3.
	MaxRetries int `mapstructure:"max_retries"`
}

// retryConfig controls backoff between retry attempts.
type retryConfig struct {
	maxRetries        uint
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// DynamoStore implements kvstore.Store on a single DynamoDB table.
type DynamoStore struct {
	client  Client
	table   string
	retry   retryConfig
	clock   clockwork.Clock
	metrics kvstore.Metrics
}

// New creates a DynamoDB store around an existing client.
func New(client Client, cfg Config) *DynamoStore {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &DynamoStore{
		client: client,
		table:  cfg.TableName,
		retry: retryConfig{
			maxRetries:        uint(maxRetries),
			initialBackoff:    100 * time.Millisecond,
			maxBackoff:        5 * time.Second,
			backoffMultiplier: 2.0,
		},
		clock: clockwork.NewRealClock(),
	}
}

// NewFromConfig loads AWS configuration and creates the store.
func NewFromConfig(ctx context.Context, cfg Config) (*DynamoStore, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamo store requires table_name to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *dynamodb.Client
	if cfg.Endpoint != "" {
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = dynamodb.NewFromConfig(awsCfg)
	}

	return New(client, cfg), nil
}

// WithClock replaces the store's clock. Used by tests to control expiry.
func (s *DynamoStore) WithClock(clock clockwork.Clock) *DynamoStore {
	s.clock = clock
	return s
}

// WithMetrics attaches an operation metrics sink. A nil sink keeps
// instrumentation disabled.
func (s *DynamoStore) WithMetrics(m kvstore.Metrics) *DynamoStore {
	s.metrics = m
	return s
}

// Get returns the document stored at key, or kvstore.ErrNotFound when
// the key is absent or its ttl attribute has passed.
func (s *DynamoStore) Get(ctx context.Context, key kvstore.Key) (value []byte, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("GetItem", time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var out *dynamodb.GetItemOutput
	err = s.withRetry(ctx, "GetItem", func() error {
		var opErr error
		out, opErr = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            keyAttributes(key),
			ConsistentRead: aws.Bool(true),
		})
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if len(out.Item) == 0 {
		return nil, kvstore.ErrNotFound
	}

	_, value, err = decodeItem(out.Item, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if value == nil {
		// Present in the table but past its ttl.
		return nil, kvstore.ErrNotFound
	}
	return value, nil
}

// Put stores a document with no expiry.
func (s *DynamoStore) Put(ctx context.Context, key kvstore.Key, value []byte) error {
	return s.put(ctx, key, value, time.Time{})
}

// PutWithTTL stores a document that expires ttl from now.
func (s *DynamoStore) PutWithTTL(ctx context.Context, key kvstore.Key, value []byte, ttl time.Duration) error {
	return s.put(ctx, key, value, s.clock.Now().Add(ttl))
}

func (s *DynamoStore) put(ctx context.Context, key kvstore.Key, value []byte, expiresAt time.Time) (err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("PutItem", time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	item, err := encodeItem(key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	err = s.withRetry(ctx, "PutItem", func() error {
		_, opErr := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      item,
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *DynamoStore) Delete(ctx context.Context, key kvstore.Key) (err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("DeleteItem", time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	err = s.withRetry(ctx, "DeleteItem", func() error {
		_, opErr := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       keyAttributes(key),
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close releases nothing; the underlying HTTP client is shared.
func (s *DynamoStore) Close() error {
	return nil
}

// withRetry runs fn, retrying transient failures with exponential
// backoff up to the configured attempt budget.
func (s *DynamoStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("DynamoDB retrying",
				"operation", operation,
				"attempt", attempt,
				"max_retries", s.retry.maxRetries,
				"backoff", backoff,
				"table", s.table)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", s.retry.maxRetries+1, lastErr)
}

// calculateBackoff returns the backoff duration for a given attempt.
func (s *DynamoStore) calculateBackoff(attempt int) time.Duration {
	backoff := float64(s.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= s.retry.backoffMultiplier
	}
	if backoff > float64(s.retry.maxBackoff) {
		backoff = float64(s.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
