// Package kms implements the secrets contract on AWS KMS. Every value
// is encrypted directly under the configured key, which keeps the
// ciphertext decryptable by any process with kms:Decrypt on that key
// and no local key material at all.
package kms

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/zipcase/zipcase/internal/logger"
)

// Client is the subset of the KMS API the encrypter uses. Production
// code passes *kms.Client; tests pass a fake.
type Client interface {
	Encrypt(ctx context.Context, params *awskms.EncryptInput, optFns ...func(*awskms.Options)) (*awskms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *awskms.DecryptInput, optFns ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// Config holds KMS encrypter configuration.
type Config struct {
	// KeyID names the KMS key (id, ARN or alias/). Required.
	KeyID string `mapstructure:"key_id"`

	// Region is the AWS region. Defaults to the SDK's resolution chain.
	Region string `mapstructure:"region"`

	// Endpoint overrides the KMS endpoint (localstack).
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

// KMSEncrypter implements secrets.Encrypter on one KMS key.
type KMSEncrypter struct {
	client Client
	keyID  string
	retry  retryConfig
}

// New creates a KMS encrypter around an existing client.
func New(client Client, cfg Config) *KMSEncrypter {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &KMSEncrypter{
		client: client,
		keyID:  cfg.KeyID,
		retry: retryConfig{
			maxRetries:        uint(maxRetries),
			initialBackoff:    100 * time.Millisecond,
			maxBackoff:        5 * time.Second,
			backoffMultiplier: 2.0,
		},
	}
}

// NewFromConfig loads AWS configuration and creates the encrypter.
func NewFromConfig(ctx context.Context, cfg Config) (*KMSEncrypter, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("kms encrypter requires key_id to be set")
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

	var client *awskms.Client
	if cfg.Endpoint != "" {
		client = awskms.NewFromConfig(awsCfg, func(o *awskms.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = awskms.NewFromConfig(awsCfg)
	}

	return New(client, cfg), nil
}

// Encrypt encrypts plaintext under the configured key.
func (e *KMSEncrypter) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *awskms.EncryptOutput
	err := e.withRetry(ctx, "Encrypt", func() error {
		var opErr error
		out, opErr = e.client.Encrypt(ctx, &awskms.EncryptInput{
			KeyId:     aws.String(e.keyID),
			Plaintext: plaintext,
		})
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("kms encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Decrypt decrypts ciphertext. The key is named inside the ciphertext
// blob, so KeyId is omitted and key rotation stays transparent.
func (e *KMSEncrypter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *awskms.DecryptOutput
	err := e.withRetry(ctx, "Decrypt", func() error {
		var opErr error
		out, opErr = e.client.Decrypt(ctx, &awskms.DecryptInput{
			CiphertextBlob: ciphertext,
		})
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

// withRetry runs fn, retrying transient failures with exponential
// backoff up to the configured attempt budget.
func (e *KMSEncrypter) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= int(e.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := e.calculateBackoff(attempt - 1)
			logger.Debug("KMS retrying",
				"operation", operation,
				"attempt", attempt,
				"max_retries", e.retry.maxRetries,
				"backoff", backoff)

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

	return fmt.Errorf("gave up after %d attempts: %w", e.retry.maxRetries+1, lastErr)
}

// calculateBackoff returns the backoff duration for a given attempt.
func (e *KMSEncrypter) calculateBackoff(attempt int) time.Duration {
	backoff := float64(e.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= e.retry.backoffMultiplier
	}
	if backoff > float64(e.retry.maxBackoff) {
		backoff = float64(e.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
