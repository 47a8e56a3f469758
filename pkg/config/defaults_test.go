package config

import (
	"testing"
	"time"

	"github.com/zipcase/zipcase/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level to be uppercased to 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 180*time.Second {
		t.Errorf("Expected default write timeout 180s, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
	if cfg.API.MaxBody != bytesize.MiB {
		t.Errorf("Expected default max body 1Mi, got %v", cfg.API.MaxBody)
	}
}

func TestApplyDefaults_Store(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Store.Type)
	}
	if cfg.Store.Dynamo.MaxRetries != 3 {
		t.Errorf("Expected default dynamo max retries 3, got %d", cfg.Store.Dynamo.MaxRetries)
	}
}

func TestApplyDefaults_Queues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Queues.Type != "memory" {
		t.Errorf("Expected default queue type 'memory', got %q", cfg.Queues.Type)
	}
	if cfg.Queues.MaxRetries != 3 {
		t.Errorf("Expected default queue max retries 3, got %d", cfg.Queues.MaxRetries)
	}
}

func TestApplyDefaults_Secrets(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Secrets.Provider != "local" {
		t.Errorf("Expected default secrets provider 'local', got %q", cfg.Secrets.Provider)
	}
	if cfg.Secrets.KMS.MaxRetries != 3 {
		t.Errorf("Expected default KMS max retries 3, got %d", cfg.Secrets.KMS.MaxRetries)
	}
}

func TestApplyDefaults_Portal(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Portal.Timeout != 20*time.Second {
		t.Errorf("Expected default portal timeout 20s, got %v", cfg.Portal.Timeout)
	}
	if cfg.Portal.CaseTimeout != 10*time.Second {
		t.Errorf("Expected default case timeout 10s, got %v", cfg.Portal.CaseTimeout)
	}
	if cfg.Portal.SessionTTL != 23*time.Hour {
		t.Errorf("Expected default session TTL 23h, got %v", cfg.Portal.SessionTTL)
	}
	if cfg.Portal.BaseURL != "" {
		t.Errorf("Expected no default portal base URL, got %q", cfg.Portal.BaseURL)
	}
}

func TestApplyDefaults_Waf(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Waf.MaxRetries != 30 {
		t.Errorf("Expected default WAF max retries 30, got %d", cfg.Waf.MaxRetries)
	}
	if cfg.Waf.RetryDelay != 5*time.Second {
		t.Errorf("Expected default WAF retry delay 5s, got %v", cfg.Waf.RetryDelay)
	}
	if cfg.Waf.PollTimeout != 10*time.Second {
		t.Errorf("Expected default WAF poll timeout 10s, got %v", cfg.Waf.PollTimeout)
	}
}

func TestApplyDefaults_Pipeline(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Pipeline.ProcessingStaleAfter != 5*time.Minute {
		t.Errorf("Expected default processing stale after 5m, got %v", cfg.Pipeline.ProcessingStaleAfter)
	}
	if cfg.Pipeline.DataDedupWindow != time.Minute {
		t.Errorf("Expected default data dedup window 1m, got %v", cfg.Pipeline.DataDedupWindow)
	}
	if cfg.Pipeline.SummaryMaxTries != 3 {
		t.Errorf("Expected default summary max tries 3, got %d", cfg.Pipeline.SummaryMaxTries)
	}
	if cfg.Pipeline.RecoveryTimeout != 30*time.Second {
		t.Errorf("Expected default recovery timeout 30s, got %v", cfg.Pipeline.RecoveryTimeout)
	}
}

func TestApplyDefaults_Workers(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Workers.SearchConcurrency != 2 {
		t.Errorf("Expected default search concurrency 2, got %d", cfg.Workers.SearchConcurrency)
	}
	if cfg.Workers.DataConcurrency != 4 {
		t.Errorf("Expected default data concurrency 4, got %d", cfg.Workers.DataConcurrency)
	}
}

func TestApplyDefaults_Uploads(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Uploads.Expiry != 15*time.Minute {
		t.Errorf("Expected default upload expiry 15m, got %v", cfg.Uploads.Expiry)
	}
	if cfg.Uploads.MaxSize != 25*bytesize.MiB {
		t.Errorf("Expected default upload max size 25Mi, got %v", cfg.Uploads.MaxSize)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "ERROR",
			Format: "json",
			Output: "/var/log/zipcase.log",
		},
		ShutdownTimeout: 60 * time.Second,
	}
	cfg.API.Port = 9999
	cfg.Portal.SessionTTL = time.Hour
	cfg.Workers.DataConcurrency = 16

	ApplyDefaults(cfg)

	// Verify explicit values were preserved
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected explicit level 'ERROR' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/zipcase.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("Expected explicit port 9999 to be preserved, got %d", cfg.API.Port)
	}
	if cfg.Portal.SessionTTL != time.Hour {
		t.Errorf("Expected explicit session TTL 1h to be preserved, got %v", cfg.Portal.SessionTTL)
	}
	if cfg.Workers.DataConcurrency != 16 {
		t.Errorf("Expected explicit data concurrency 16 to be preserved, got %d", cfg.Workers.DataConcurrency)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	// The default config should pass validation
	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	// Check all required sections are present
	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Store.Type == "" {
		t.Error("Default config missing store type")
	}
	if cfg.Queues.Type == "" {
		t.Error("Default config missing queue type")
	}
	if cfg.Secrets.Provider == "" {
		t.Error("Default config missing secrets provider")
	}
	if cfg.ShutdownTimeout == 0 {
		t.Error("Default config missing shutdown timeout")
	}
}
