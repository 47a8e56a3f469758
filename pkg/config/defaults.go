package config

import (
	"strings"
	"time"

	"github.com/zipcase/zipcase/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyAPIDefaults(&cfg.API)
	applyMetricsDefaults(&cfg.Metrics)
	applyStoreDefaults(&cfg.Store)
	applyQueuesDefaults(&cfg.Queues)
	applySecretsDefaults(&cfg.Secrets)
	applyPortalDefaults(&cfg.Portal)
	applyWafDefaults(&cfg.Waf)
	applyPipelineDefaults(&cfg.Pipeline)
	applyWorkersDefaults(&cfg.Workers)
	applyUploadsDefaults(&cfg.Uploads)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyAPIDefaults sets API server defaults.
// The API is always enabled (it is the only way in).
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Credential verification performs a live portal login, which
		// can include a slow bot-challenge solve.
		cfg.WriteTimeout = 180 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MaxBody == 0 {
		cfg.MaxBody = bytesize.MiB
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStoreDefaults sets case-state store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	// Default to the in-memory store so the daemon runs out of the box.
	// Production deployments configure dynamo.
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Dynamo.MaxRetries == 0 {
		cfg.Dynamo.MaxRetries = 3
	}
}

// applyQueuesDefaults sets stage queue defaults.
func applyQueuesDefaults(cfg *QueuesConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
}

// applySecretsDefaults sets credential encryption defaults.
func applySecretsDefaults(cfg *SecretsConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "local"
	}
	if cfg.KMS.MaxRetries == 0 {
		cfg.KMS.MaxRetries = 3
	}
	// Passphrase and salt have no defaults; 'zipcase init' generates them.
}

// applyPortalDefaults sets portal client defaults.
// BaseURL has no default - it is deployment-specific and required to serve.
func applyPortalDefaults(cfg *PortalConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.CaseTimeout == 0 {
		cfg.CaseTimeout = 10 * time.Second
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 23 * time.Hour
	}
}

// applyWafDefaults sets challenge solver defaults.
func applyWafDefaults(cfg *WafConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 30
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Second
	}
}

// applyPipelineDefaults sets pipeline tunable defaults.
func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.ProcessingStaleAfter == 0 {
		cfg.ProcessingStaleAfter = 5 * time.Minute
	}
	if cfg.DataDedupWindow == 0 {
		cfg.DataDedupWindow = time.Minute
	}
	if cfg.SummaryMaxTries == 0 {
		cfg.SummaryMaxTries = 3
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
}

// applyWorkersDefaults sets consumer pool defaults.
func applyWorkersDefaults(cfg *WorkersConfig) {
	if cfg.SearchConcurrency == 0 {
		cfg.SearchConcurrency = 2
	}
	if cfg.DataConcurrency == 0 {
		cfg.DataConcurrency = 4
	}
}

// applyUploadsDefaults sets presigned upload defaults.
// Bucket has no default - the endpoint is disabled without one.
func applyUploadsDefaults(cfg *UploadsConfig) {
	if cfg.Expiry == 0 {
		cfg.Expiry = 15 * time.Minute
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 25 * bytesize.MiB
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store:   StoreConfig{Type: "memory"},
		Queues:  QueuesConfig{Type: "memory"},
		Secrets: SecretsConfig{Provider: "local"},
	}

	ApplyDefaults(cfg)
	return cfg
}
