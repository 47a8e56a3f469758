package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "cassandra"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_DynamoWithoutTable(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "dynamo"
	cfg.Store.Dynamo.TableName = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for dynamo store without table name")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "table") {
		t.Errorf("Expected error about table name, got: %v", err)
	}
}

func TestValidate_BadgerWithoutPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "badger"
	cfg.Store.Badger.Path = ""
	cfg.Store.Badger.InMemory = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for badger store without path")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "path") {
		t.Errorf("Expected error about badger path, got: %v", err)
	}
}

func TestValidate_BadgerInMemoryWithoutPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "badger"
	cfg.Store.Badger.Path = ""
	cfg.Store.Badger.InMemory = true

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected in-memory badger without path to be valid, got: %v", err)
	}
}

func TestValidate_SQSWithoutQueueURLs(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Queues.Type = "sqs"
	cfg.Queues.SearchURL = ""
	cfg.Queues.DataURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sqs queues without URLs")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "queue") {
		t.Errorf("Expected error about queue URLs, got: %v", err)
	}
}

func TestValidate_SQSWithOnlySearchURL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Queues.Type = "sqs"
	cfg.Queues.SearchURL = "https://sqs.us-east-1.amazonaws.com/123/search.fifo"
	cfg.Queues.DataURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when only one queue URL is set")
	}
}

func TestValidate_WafKeyWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Waf.APIKey = "secret-key"
	cfg.Waf.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for WAF API key without endpoint")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "waf") {
		t.Errorf("Expected error about waf endpoint, got: %v", err)
	}
}

func TestValidate_InvalidPortalURL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Portal.BaseURL = "not a url"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for malformed portal URL")
	}
}

func TestValidate_MissingPortalURLIsAllowed(t *testing.T) {
	// The portal base URL is enforced at daemon start, not here, so
	// commands like 'zipcase config schema' work before deployment.
	cfg := GetDefaultConfig()
	cfg.Portal.BaseURL = ""

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected empty portal URL to pass validation, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") && !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_WorkerConcurrencyRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Workers.DataConcurrency = 200

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for data concurrency out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Test that validation accepts both uppercase and lowercase log levels
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize - level should remain as-is
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	// Test that normalization happens in ApplyDefaults
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
