package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// initTemplate is the starter configuration written by 'zipcase init'.
// It targets a single-node local deployment: in-memory queues, badger
// store and the local encrypter with generated secrets. Production
// deployments switch the backends to dynamo/sqs/kms.
const initTemplate = `# ZipCase Configuration File
#
# Generated by 'zipcase init'. Values below can be overridden with
# ZIPCASE_* environment variables (ZIPCASE_LOGGING_LEVEL=DEBUG, ...).

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

# The court portal this deployment talks to. base_url is required
# before 'zipcase start' will run (env: PORTAL_URL).
portal:
  base_url: ""
  case_url: ""
  timeout: 20s
  case_timeout: 10s
  session_ttl: 23h

api:
  port: 8080
  # Shared secret verifying bearer tokens issued by the identity
  # frontend (HS256, sub = user ID). env: ZIPCASE_API_JWT_SECRET
  jwt_secret: "%s"

# Case-state store. Switch type to "dynamo" and fill in table_name for
# production (env: ZIPCASE_DATA_TABLE).
store:
  type: "badger"
  badger:
    path: "%s"

# Stage queues. Switch type to "sqs" and fill in the FIFO queue URLs
# for production (env: SEARCH_QUEUE_URL, CASE_DATA_QUEUE_URL).
queues:
  type: "memory"

# Credential encryption. Switch provider to "kms" and fill in key_id
# for production (env: KMS_KEY_ID). The generated passphrase/salt pair
# protects credentials at rest on this node; changing it invalidates
# stored credentials.
secrets:
  provider: "local"
  local:
    passphrase: "%s"
    salt: "%s"

# Bot-challenge solver provider. Leave endpoint empty if the portal
# never serves challenges from this egress.
waf:
  endpoint: ""
  max_retries: 30
  retry_delay: 5s

pipeline:
  processing_stale_after: 5m
  data_dedup_window: 1m
  summary_max_tries: 3

workers:
  search_concurrency: 2
  data_concurrency: 4

metrics:
  enabled: false
  port: 9090

shutdown_timeout: 30s
`

// InitConfig writes a starter configuration file to the default
// location and returns its path.
//
// The generated file carries freshly generated secrets (JWT shared
// secret, local encrypter passphrase and salt) and is written with
// 0600 permissions. An existing file is never overwritten unless force
// is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration file to the given
// path, creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	jwtSecret, err := randomHex(32)
	if err != nil {
		return err
	}
	passphrase, err := randomHex(32)
	if err != nil {
		return err
	}
	salt, err := randomHex(16)
	if err != nil {
		return err
	}

	dataDir := defaultDataDir()
	content := fmt.Sprintf(initTemplate, jwtSecret, filepath.ToSlash(filepath.Join(dataDir, "store")), passphrase, salt)

	// Parse what we are about to write; a starter config that does not
	// load is worse than no config.
	cfg := &Config{}
	if err := validateTemplate(content, cfg); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// defaultDataDir returns the directory for node-local state.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or the current
// directory as a last resort.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "zipcase")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "zipcase")
}

// validateTemplate loads the rendered template through the same path a
// real config file takes.
func validateTemplate(content string, cfg *Config) error {
	tmp, err := os.CreateTemp("", "zipcase-init-*.yaml")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	loaded, err := Load(tmp.Name())
	if err != nil {
		return err
	}
	*cfg = *loaded
	return nil
}
