package config

import (
	"context"
	"fmt"

	"github.com/zipcase/zipcase/pkg/api"
	"github.com/zipcase/zipcase/pkg/kvstore"
	kvbadger "github.com/zipcase/zipcase/pkg/kvstore/badger"
	"github.com/zipcase/zipcase/pkg/kvstore/dynamo"
	kvmemory "github.com/zipcase/zipcase/pkg/kvstore/memory"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/portal/waf"
	"github.com/zipcase/zipcase/pkg/queue"
	qmemory "github.com/zipcase/zipcase/pkg/queue/memory"
	"github.com/zipcase/zipcase/pkg/queue/sqs"
	"github.com/zipcase/zipcase/pkg/secrets"
	"github.com/zipcase/zipcase/pkg/secrets/kms"
	"github.com/zipcase/zipcase/pkg/secrets/local"
	"github.com/zipcase/zipcase/pkg/uploads"
)

// CreateStore creates the case-state store backend selected by cfg.Type.
//
// The metrics sink may be nil (metrics disabled); only the DynamoDB
// backend observes operations.
func CreateStore(ctx context.Context, cfg StoreConfig, m kvstore.Metrics) (kvstore.Store, error) {
	switch cfg.Type {
	case "memory", "":
		return kvmemory.NewMemoryStore(), nil

	case "badger":
		store, err := kvbadger.NewBadgerStore(ctx, kvbadger.Config{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil

	case "dynamo":
		store, err := dynamo.NewFromConfig(ctx, dynamo.Config{
			TableName:       cfg.Dynamo.TableName,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			MaxRetries:      cfg.Dynamo.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamo store: %w", err)
		}
		return store.WithMetrics(m), nil

	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

// CreateQueues creates the search-stage and data-stage queues selected
// by cfg.Type.
//
// The metrics sink may be nil (metrics disabled); only the SQS backend
// observes operations.
func CreateQueues(ctx context.Context, cfg QueuesConfig, m queue.Metrics) (search, data queue.Queue, err error) {
	switch cfg.Type {
	case "memory", "":
		return qmemory.NewMemoryQueue(), qmemory.NewMemoryQueue(), nil

	case "sqs":
		searchQ, err := sqs.NewFromConfig(ctx, sqs.Config{
			Name:            "search",
			QueueURL:        cfg.SearchURL,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			MaxRetries:      cfg.MaxRetries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create search queue: %w", err)
		}
		dataQ, err := sqs.NewFromConfig(ctx, sqs.Config{
			Name:            "data",
			QueueURL:        cfg.DataURL,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			MaxRetries:      cfg.MaxRetries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create data queue: %w", err)
		}
		return searchQ.WithMetrics(m), dataQ.WithMetrics(m), nil

	default:
		return nil, nil, fmt.Errorf("unknown queue type: %q", cfg.Type)
	}
}

// CreateEncrypter creates the credential encrypter selected by
// cfg.Provider.
func CreateEncrypter(ctx context.Context, cfg SecretsConfig) (secrets.Encrypter, error) {
	switch cfg.Provider {
	case "local", "":
		enc, err := local.New(local.Config{
			Passphrase: cfg.Local.Passphrase,
			Salt:       cfg.Local.Salt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create local encrypter: %w", err)
		}
		return enc, nil

	case "kms":
		enc, err := kms.NewFromConfig(ctx, kms.Config{
			KeyID:           cfg.KMS.KeyID,
			Region:          cfg.KMS.Region,
			Endpoint:        cfg.KMS.Endpoint,
			AccessKeyID:     cfg.KMS.AccessKeyID,
			SecretAccessKey: cfg.KMS.SecretAccessKey,
			MaxRetries:      cfg.KMS.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create kms encrypter: %w", err)
		}
		return enc, nil

	default:
		return nil, fmt.Errorf("unknown secrets provider: %q", cfg.Provider)
	}
}

// CreateSolver creates the bot-challenge solver, or returns nil when no
// provider endpoint is configured (challenges then fail hard, which is
// the correct behavior for deployments that never see the WAF).
//
// keyFunc supplies the provider API key lazily when cfg.APIKey is
// empty, typically reading it from the secret store on first use.
func CreateSolver(cfg WafConfig, keyFunc waf.KeyFunc) (waf.Solver, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	solver, err := waf.NewHTTPSolver(waf.Config{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		PollTimeout: cfg.PollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create waf solver: %w", err)
	}
	if keyFunc != nil {
		solver = solver.WithKeyFunc(keyFunc)
	}
	return solver, nil
}

// PortalConfig converts the portal section to the client's own config
// type. BaseURL is required to serve; the portal client enforces it.
func (c *Config) PortalConfig() portal.Config {
	return portal.Config{
		BaseURL:     c.Portal.BaseURL,
		CaseURL:     c.Portal.CaseURL,
		Timeout:     c.Portal.Timeout,
		CaseTimeout: c.Portal.CaseTimeout,
		SessionTTL:  c.Portal.SessionTTL,
	}
}

// PipelineConfig converts the pipeline section to the pipeline's own
// config type.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		ProcessingStaleAfter: c.Pipeline.ProcessingStaleAfter,
		DataDedupWindow:      c.Pipeline.DataDedupWindow,
		SummaryMaxTries:      c.Pipeline.SummaryMaxTries,
		RecoveryTimeout:      c.Pipeline.RecoveryTimeout,
	}
}

// APIServerConfig converts the api section to the server's own config
// type. Named to avoid colliding with the API field.
func (c *Config) APIServerConfig() api.Config {
	return api.Config{
		Port:         c.API.Port,
		ReadTimeout:  c.API.ReadTimeout,
		WriteTimeout: c.API.WriteTimeout,
		IdleTimeout:  c.API.IdleTimeout,
		MaxBody:      int64(c.API.MaxBody),
	}
}

// UploadSignerConfig converts the uploads section to the signer's own
// config type.
func (c *Config) UploadSignerConfig() uploads.Config {
	return uploads.Config{
		Bucket:          c.Uploads.Bucket,
		Region:          c.Uploads.Region,
		Endpoint:        c.Uploads.Endpoint,
		AccessKeyID:     c.Uploads.AccessKeyID,
		SecretAccessKey: c.Uploads.SecretAccessKey,
		Expiry:          c.Uploads.Expiry,
	}
}
