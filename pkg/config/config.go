package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zipcase/zipcase/internal/bytesize"
	"github.com/zipcase/zipcase/internal/logger"
)

// EnvJWTSecret is the environment variable that overrides the API
// bearer token secret.
const EnvJWTSecret = "ZIPCASE_API_JWT_SECRET"

// Config represents the ZipCase configuration.
//
// This structure captures static configuration aspects of the ZipCase
// service:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - API server settings (port, timeouts, token secret)
//   - Case-state store backend (DynamoDB, BadgerDB or memory)
//   - Queue backends for the two pipeline stages
//   - Credential encryption provider (KMS or local AES-GCM)
//   - Portal client, WAF solver and pipeline tunables
//
// Dynamic state (cases, credentials, sessions, search records) lives in
// the case-state store and is never part of this file.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ZIPCASE_*, plus bare un-prefixed aliases
//     such as PORTAL_URL and SEARCH_QUEUE_URL; see bindEnvAliases)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// API contains HTTP API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store configures the case-state store backend
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Queues configures the two pipeline stage queues
	Queues QueuesConfig `mapstructure:"queues" yaml:"queues"`

	// Secrets configures credential encryption at rest
	Secrets SecretsConfig `mapstructure:"secrets" yaml:"secrets"`

	// Portal configures the court portal client.
	// Environment variable overrides:
	//   ZIPCASE_PORTAL_URL or PORTAL_URL overrides BaseURL
	//   ZIPCASE_PORTAL_CASE_URL or PORTAL_CASE_URL overrides CaseURL
	Portal PortalConfig `mapstructure:"portal" yaml:"portal"`

	// Waf configures the bot-challenge solver provider
	Waf WafConfig `mapstructure:"waf" yaml:"waf"`

	// Pipeline contains staleness, dedup and retry tunables
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Workers sizes the queue consumer pools
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`

	// Uploads configures presigned upload URL generation
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	// Port is the HTTP port for the API
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds request header+body reads.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Credential verification runs
	// a live portal login (possibly solving a bot challenge), so this
	// is much longer than a typical API server's.
	// Default: 180s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWTSecret verifies the HS256 bearer tokens issued by the identity
	// frontend. The token's sub claim is the ZipCase user ID.
	// Override: ZIPCASE_API_JWT_SECRET
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// MaxBody caps request body size.
	// Default: 1Mi
	MaxBody bytesize.ByteSize `mapstructure:"max_body" yaml:"max_body,omitempty"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics
	// endpoint are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the standalone metrics server.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig selects and configures the case-state store backend.
type StoreConfig struct {
	// Type selects the backend: "dynamo", "badger" or "memory"
	// Default: "memory" (single-process testing; use dynamo in production)
	Type string `mapstructure:"type" validate:"required,oneof=dynamo badger memory" yaml:"type"`

	// Dynamo configures the DynamoDB backend
	Dynamo DynamoConfig `mapstructure:"dynamo" yaml:"dynamo,omitempty"`

	// Badger configures the BadgerDB backend
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger,omitempty"`
}

// DynamoConfig configures the DynamoDB store backend.
type DynamoConfig struct {
	// TableName is the table holding all case-state records.
	// Override: ZIPCASE_DATA_TABLE
	TableName string `mapstructure:"table_name" yaml:"table_name"`

	// Region is the AWS region. Empty uses the SDK's resolution chain.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the DynamoDB endpoint (localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey provide static credentials, used
	// with localstack. Production deployments leave them empty.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// MaxRetries bounds retries of throttled or transient failures.
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
}

// BadgerConfig configures the BadgerDB store backend.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// InMemory keeps all data off disk. Used by tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
}

// QueuesConfig selects and configures the two pipeline stage queues.
type QueuesConfig struct {
	// Type selects the backend: "sqs" or "memory"
	// Default: "memory" (single-process testing; use sqs in production)
	Type string `mapstructure:"type" validate:"required,oneof=sqs memory" yaml:"type"`

	// SearchURL is the search-stage FIFO queue URL.
	// Override: ZIPCASE_SEARCH_QUEUE_URL or SEARCH_QUEUE_URL
	SearchURL string `mapstructure:"search_url" yaml:"search_url,omitempty"`

	// DataURL is the data-stage FIFO queue URL.
	// Override: ZIPCASE_CASE_DATA_QUEUE_URL or CASE_DATA_QUEUE_URL
	DataURL string `mapstructure:"data_url" yaml:"data_url,omitempty"`

	// Region is the AWS region. Empty uses the SDK's resolution chain.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the SQS endpoint (localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey provide static credentials, used
	// with localstack. Production deployments leave them empty.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// MaxRetries bounds retries of throttled or transient failures.
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
}

// SecretsConfig selects and configures the credential encrypter.
type SecretsConfig struct {
	// Provider selects the encrypter: "kms" or "local"
	// Default: "local"
	Provider string `mapstructure:"provider" validate:"required,oneof=kms local" yaml:"provider"`

	// KMS configures the AWS KMS encrypter
	KMS KMSConfig `mapstructure:"kms" yaml:"kms,omitempty"`

	// Local configures the scrypt/AES-GCM encrypter
	Local LocalSecretsConfig `mapstructure:"local" yaml:"local,omitempty"`
}

// KMSConfig configures the AWS KMS encrypter.
type KMSConfig struct {
	// KeyID names the KMS key (id, ARN or alias/).
	// Override: ZIPCASE_KMS_KEY_ID or KMS_KEY_ID
	KeyID string `mapstructure:"key_id" yaml:"key_id"`

	// Region is the AWS region. Empty uses the SDK's resolution chain.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the KMS endpoint (localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey provide static credentials, used
	// with localstack. Production deployments leave them empty.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// MaxRetries bounds retries of throttled or transient failures.
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
}

// LocalSecretsConfig configures the local AES-GCM encrypter.
// The key is derived from the passphrase with scrypt.
type LocalSecretsConfig struct {
	// Passphrase is the secret the key is derived from.
	// Override: ZIPCASE_SECRETS_LOCAL_PASSPHRASE
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`

	// Salt feeds the KDF. At least 8 bytes; changing it invalidates all
	// existing ciphertext.
	Salt string `mapstructure:"salt" yaml:"salt,omitempty"`
}

// PortalConfig configures the court portal client.
type PortalConfig struct {
	// BaseURL is the portal root, e.g. https://portal.example.gov.
	// Required for the service daemon; absence is a startup error.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url" yaml:"base_url"`

	// CaseURL is the base URL of the case-detail JSON endpoint; the
	// portal case ID is appended as a path segment.
	CaseURL string `mapstructure:"case_url" validate:"omitempty,url" yaml:"case_url"`

	// Timeout bounds each portal page request.
	// Default: 20s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// CaseTimeout bounds each case-detail request.
	// Default: 10s
	CaseTimeout time.Duration `mapstructure:"case_timeout" yaml:"case_timeout"`

	// SessionTTL caps how long an authenticated portal session is
	// reused before re-login.
	// Default: 23h
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// WafConfig configures the bot-challenge solver provider.
type WafConfig struct {
	// Endpoint is the provider API base URL. Empty disables the solver;
	// challenges then fail hard.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint,omitempty"`

	// APIKey authenticates to the provider. Leave empty to have the
	// session manager read it from the secret store on first use.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// MaxRetries bounds result polling attempts.
	// Default: 30
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries,omitempty"`

	// RetryDelay spaces result polling attempts.
	// Default: 5s
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay,omitempty"`

	// PollTimeout bounds each individual provider request.
	// Default: 10s
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout,omitempty"`
}

// PipelineConfig contains the pipeline staleness, dedup and retry tunables.
type PipelineConfig struct {
	// ProcessingStaleAfter is the stuck-processing reclaim bound.
	// Default: 5m
	ProcessingStaleAfter time.Duration `mapstructure:"processing_stale_after" yaml:"processing_stale_after"`

	// DataDedupWindow suppresses duplicate summary fetches for cases
	// whose resolution is this recent.
	// Default: 1m
	DataDedupWindow time.Duration `mapstructure:"data_dedup_window" yaml:"data_dedup_window"`

	// SummaryMaxTries is the reprocessing budget per corrupt summary.
	// Default: 3
	SummaryMaxTries int `mapstructure:"summary_max_tries" validate:"omitempty,min=1" yaml:"summary_max_tries"`

	// RecoveryTimeout bounds one corrupt-summary recovery dispatch.
	// Default: 30s
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout"`
}

// WorkersConfig sizes the queue consumer pools.
type WorkersConfig struct {
	// SearchConcurrency is the number of search-stage workers.
	// Default: 2
	SearchConcurrency int `mapstructure:"search_concurrency" validate:"omitempty,min=1,max=64" yaml:"search_concurrency"`

	// DataConcurrency is the number of data-stage workers.
	// Default: 4
	DataConcurrency int `mapstructure:"data_concurrency" validate:"omitempty,min=1,max=64" yaml:"data_concurrency"`
}

// UploadsConfig configures presigned upload URL generation for the
// file-ingest collaborator.
type UploadsConfig struct {
	// Bucket is the S3 bucket uploads are presigned into. Empty
	// disables the upload-url endpoint.
	// Override: ZIPCASE_UPLOADS_BUCKET or UPLOADS_BUCKET
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Region is the AWS region. Empty uses the SDK's resolution chain.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey provide static credentials, used
	// with localstack. Production deployments leave them empty.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// Expiry is how long a presigned URL stays usable.
	// Default: 15m
	Expiry time.Duration `mapstructure:"expiry" yaml:"expiry,omitempty"`

	// MaxSize caps the declared size of a requested upload.
	// Default: 25Mi
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ZIPCASE_*, plus documented bare aliases)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists. A missing file is fine:
	// the documented environment variables alone can configure a
	// deployment.
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// DEBUG=true is the documented shorthand for verbose diagnostics
	if debugRequested() {
		cfg.Logging.Level = "DEBUG"
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  zipcase init\n\n"+
				"Or specify a custom config file:\n"+
				"  zipcase <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  zipcase init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with restricted permissions (0600 = owner read/write only).
	// The file may hold the JWT secret, the local encrypter passphrase
	// and localstack credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Watch re-loads the configuration whenever the file changes and hands
// every valid new snapshot to onChange. Invalid edits are logged and
// skipped, keeping the running config intact. The watcher goroutine
// lives for the rest of the process.
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("cannot watch config file: %w", err)
	}

	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		return err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load(configPath)
		if err != nil {
			logger.Warn("Ignoring config file change", "path", configPath, "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use ZIPCASE_ prefix and underscores
	// Example: ZIPCASE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ZIPCASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvAliases(v)

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/zipcase/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// bindEnvAliases registers explicit environment bindings. Explicit
// bindings survive viper's Unmarshal even when the key is absent from
// the config file, and carry the documented bare aliases that predate
// the ZIPCASE_ prefix. First match wins.
func bindEnvAliases(v *viper.Viper) {
	aliases := [][]string{
		{"portal.base_url", "ZIPCASE_PORTAL_BASE_URL", "ZIPCASE_PORTAL_URL", "PORTAL_URL"},
		{"portal.case_url", "ZIPCASE_PORTAL_CASE_URL", "PORTAL_CASE_URL"},
		{"queues.search_url", "ZIPCASE_QUEUES_SEARCH_URL", "ZIPCASE_SEARCH_QUEUE_URL", "SEARCH_QUEUE_URL"},
		{"queues.data_url", "ZIPCASE_QUEUES_DATA_URL", "ZIPCASE_CASE_DATA_QUEUE_URL", "CASE_DATA_QUEUE_URL"},
		{"queues.endpoint", "ZIPCASE_QUEUES_ENDPOINT"},
		{"queues.type", "ZIPCASE_QUEUES_TYPE"},
		{"store.type", "ZIPCASE_STORE_TYPE"},
		{"store.dynamo.table_name", "ZIPCASE_STORE_DYNAMO_TABLE_NAME", "ZIPCASE_DATA_TABLE"},
		{"store.dynamo.endpoint", "ZIPCASE_STORE_DYNAMO_ENDPOINT"},
		{"store.badger.path", "ZIPCASE_STORE_BADGER_PATH"},
		{"secrets.provider", "ZIPCASE_SECRETS_PROVIDER"},
		{"secrets.kms.key_id", "ZIPCASE_SECRETS_KMS_KEY_ID", "ZIPCASE_KMS_KEY_ID", "KMS_KEY_ID"},
		{"secrets.local.passphrase", "ZIPCASE_SECRETS_LOCAL_PASSPHRASE"},
		{"secrets.local.salt", "ZIPCASE_SECRETS_LOCAL_SALT"},
		{"uploads.bucket", "ZIPCASE_UPLOADS_BUCKET", "UPLOADS_BUCKET"},
		{"api.port", "ZIPCASE_API_PORT"},
		{"api.jwt_secret", EnvJWTSecret},
		{"waf.endpoint", "ZIPCASE_WAF_ENDPOINT"},
		{"waf.api_key", "ZIPCASE_WAF_API_KEY"},
		{"logging.level", "ZIPCASE_LOGGING_LEVEL"},
		{"metrics.enabled", "ZIPCASE_METRICS_ENABLED"},
		{"workers.search_concurrency", "ZIPCASE_WORKERS_SEARCH_CONCURRENCY"},
		{"workers.data_concurrency", "ZIPCASE_WORKERS_DATA_CONCURRENCY"},
	}
	for _, a := range aliases {
		_ = v.BindEnv(a...)
	}
}

// debugRequested reports whether the DEBUG environment shorthand asks
// for verbose diagnostics.
func debugRequested() bool {
	val := os.Getenv("DEBUG")
	if val == "" {
		return false
	}
	b, err := strconv.ParseBool(val)
	return err == nil && b
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use env + defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use human-readable
// sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to ByteSize
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse human-readable string like "1Gi", "500Mi", "100MB"
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "zipcase")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "zipcase")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
