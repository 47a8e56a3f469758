// Package sqs implements the queue contract on Amazon SQS FIFO queues.
//
// Group ordering, deduplication and visibility timeouts are native SQS
// FIFO features; this adapter maps the contract onto them and adds
// bounded retries for throttled or transient failures. The queue URL
// must point at a .fifo queue with content-based deduplication off
// (the adapter always sets an explicit deduplication id).
package sqs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/queue"
)

// maxWaitTime is the longest wait SQS accepts on one ReceiveMessage.
const maxWaitTime = 20 * time.Second

// Client is the subset of the SQS API the adapter uses. Production
// code passes *sqs.Client; tests pass a fake.
type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *awssqs.SendMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

// Config holds SQS queue configuration.
type Config struct {
	// Name is the logical queue name ("search" or "data"), used for
	// logging and metrics labels. Required.
	Name string `mapstructure:"name"`

	// QueueURL is the full SQS queue URL. Required.
	QueueURL string `mapstructure:"queue_url"`

	// Region is the AWS region. Defaults to the SDK's resolution chain.
	Region string `mapstructure:"region"`

	// Endpoint overrides the SQS endpoint (localstack).
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

// SQSQueue implements queue.Queue on one SQS FIFO queue.
type SQSQueue struct {
	client   Client
	name     string
	queueURL string
	retry    retryConfig
	metrics  queue.Metrics
}

// New creates an SQS queue adapter around an existing client.
func New(client Client, cfg Config) *SQSQueue {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &SQSQueue{
		client:   client,
		name:     cfg.Name,
		queueURL: cfg.QueueURL,
		retry: retryConfig{
			maxRetries:        uint(maxRetries),
			initialBackoff:    100 * time.Millisecond,
			maxBackoff:        5 * time.Second,
			backoffMultiplier: 2.0,
		},
	}
}

// NewFromConfig loads AWS configuration and creates the adapter.
func NewFromConfig(ctx context.Context, cfg Config) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue requires queue_url to be set")
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

	var client *awssqs.Client
	if cfg.Endpoint != "" {
		client = awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = awssqs.NewFromConfig(awsCfg)
	}

	return New(client, cfg), nil
}

// WithMetrics attaches an operation metrics sink. A nil sink keeps
// instrumentation disabled.
func (q *SQSQueue) WithMetrics(m queue.Metrics) *SQSQueue {
	q.metrics = m
	return q
}

// Send enqueues one message.
func (q *SQSQueue) Send(ctx context.Context, msg queue.Message) (err error) {
	start := time.Now()
	defer func() {
		if q.metrics != nil {
			q.metrics.ObserveSend(q.name, 1, time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	err = q.withRetry(ctx, "SendMessage", func() error {
		_, opErr := q.client.SendMessage(ctx, &awssqs.SendMessageInput{
			QueueUrl:               aws.String(q.queueURL),
			MessageBody:            aws.String(string(msg.Body)),
			MessageGroupId:         aws.String(msg.GroupID),
			MessageDeduplicationId: aws.String(msg.DedupID),
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to send to %s queue: %w", q.name, err)
	}
	return nil
}

// SendBatch enqueues messages in chunks of queue.MaxBatchSize. Any
// entry SQS rejects fails the whole call; later chunks are not sent.
func (q *SQSQueue) SendBatch(ctx context.Context, msgs []queue.Message) (err error) {
	start := time.Now()
	defer func() {
		if q.metrics != nil {
			q.metrics.ObserveSend(q.name, len(msgs), time.Since(start), err)
		}
	}()

	for chunkStart := 0; chunkStart < len(msgs); chunkStart += queue.MaxBatchSize {
		chunkEnd := chunkStart + queue.MaxBatchSize
		if chunkEnd > len(msgs) {
			chunkEnd = len(msgs)
		}
		chunk := msgs[chunkStart:chunkEnd]

		entries := make([]types.SendMessageBatchRequestEntry, len(chunk))
		for i, msg := range chunk {
			entries[i] = types.SendMessageBatchRequestEntry{
				Id:                     aws.String(strconv.Itoa(i)),
				MessageBody:            aws.String(string(msg.Body)),
				MessageGroupId:         aws.String(msg.GroupID),
				MessageDeduplicationId: aws.String(msg.DedupID),
			}
		}

		var out *awssqs.SendMessageBatchOutput
		err = q.withRetry(ctx, "SendMessageBatch", func() error {
			var opErr error
			out, opErr = q.client.SendMessageBatch(ctx, &awssqs.SendMessageBatchInput{
				QueueUrl: aws.String(q.queueURL),
				Entries:  entries,
			})
			return opErr
		})
		if err != nil {
			return fmt.Errorf("failed to send batch to %s queue: %w", q.name, err)
		}

		if len(out.Failed) > 0 {
			err = batchFailureError(out.Failed)
			return fmt.Errorf("partial failure sending batch to %s queue: %w", q.name, err)
		}
	}
	return nil
}

// batchFailureError condenses per-entry failures into one error.
func batchFailureError(failed []types.BatchResultErrorEntry) error {
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("entry %s: %s (%s)",
			aws.ToString(f.Id), aws.ToString(f.Message), aws.ToString(f.Code)))
	}
	return fmt.Errorf("%d entries failed: %s", len(failed), strings.Join(parts, "; "))
}

// Receive long-polls for up to wait (capped at the 20s SQS maximum)
// and returns at most max messages.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) (msgs []queue.ReceivedMessage, err error) {
	start := time.Now()
	defer func() {
		if q.metrics != nil {
			q.metrics.ObserveReceive(q.name, len(msgs), time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10
	}
	if wait > maxWaitTime {
		wait = maxWaitTime
	}

	// Long polls are not retried; the worker loop re-polls anyway.
	out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameMessageGroupId,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s queue: %w", q.name, err)
	}

	if len(out.Messages) == 0 {
		return nil, queue.ErrNoMessages
	}

	msgs = make([]queue.ReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, queue.ReceivedMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			GroupID:       m.Attributes[string(types.MessageSystemAttributeNameMessageGroupId)],
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Delete settles a delivery.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) (err error) {
	start := time.Now()
	defer func() {
		if q.metrics != nil {
			q.metrics.ObserveDelete(q.name, time.Since(start), err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	err = q.withRetry(ctx, "DeleteMessage", func() error {
		_, opErr := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: aws.String(receiptHandle),
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete from %s queue: %w", q.name, err)
	}
	return nil
}

// Close releases nothing; the underlying HTTP client is shared.
func (q *SQSQueue) Close() error {
	return nil
}

// withRetry runs fn, retrying transient failures with exponential
// backoff up to the configured attempt budget.
func (q *SQSQueue) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= int(q.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := q.calculateBackoff(attempt - 1)
			logger.Debug("SQS retrying",
				"operation", operation,
				"attempt", attempt,
				"max_retries", q.retry.maxRetries,
				"backoff", backoff,
				"queue", q.name)

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

	return fmt.Errorf("gave up after %d attempts: %w", q.retry.maxRetries+1, lastErr)
}

// calculateBackoff returns the backoff duration for a given attempt.
func (q *SQSQueue) calculateBackoff(attempt int) time.Duration {
	backoff := float64(q.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= q.retry.backoffMultiplier
	}
	if backoff > float64(q.retry.maxBackoff) {
		backoff = float64(q.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
