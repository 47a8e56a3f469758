package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural problems: bad enum
// values, out-of-range numbers, and backend sections missing the fields
// their selected backend needs.
//
// Runtime-only material (portal base URL, encrypter passphrase, KMS key)
// is intentionally not required here: it may arrive via environment in
// one deployment and via the file in another, and commands like
// 'zipcase config schema' must work without it. The component factories
// fail fast on anything missing at start.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Cross-field checks the struct tags cannot express.
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no collector endpoint is configured")
	}

	switch cfg.Store.Type {
	case "dynamo":
		if cfg.Store.Dynamo.TableName == "" {
			return fmt.Errorf("store type is dynamo but store.dynamo.table_name is not set (ZIPCASE_DATA_TABLE)")
		}
	case "badger":
		if cfg.Store.Badger.Path == "" && !cfg.Store.Badger.InMemory {
			return fmt.Errorf("store type is badger but store.badger.path is not set")
		}
	}

	if cfg.Queues.Type == "sqs" {
		if cfg.Queues.SearchURL == "" {
			return fmt.Errorf("queues type is sqs but queues.search_url is not set (SEARCH_QUEUE_URL)")
		}
		if cfg.Queues.DataURL == "" {
			return fmt.Errorf("queues type is sqs but queues.data_url is not set (CASE_DATA_QUEUE_URL)")
		}
	}

	if cfg.Waf.Endpoint == "" && cfg.Waf.APIKey != "" {
		return fmt.Errorf("waf.api_key is set but waf.endpoint is not")
	}

	return nil
}
