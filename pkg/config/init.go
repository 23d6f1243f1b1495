package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig creates a sample configuration file at the default location
// ($XDG_CONFIG_HOME/spkeasy/config.yaml) and returns the path written.
//
// Fails when a file already exists unless force is set.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath creates a sample configuration file at an explicit path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := buildSampleConfig()
	if err != nil {
		return err
	}

	// 0600: the generated file carries fresh secrets.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateSecret returns a hex-encoded random secret carrying n bytes of
// entropy (the encoded string is 2n characters long).
func generateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// buildSampleConfig renders the commented sample configuration with fresh
// secrets baked in.
func buildSampleConfig() (string, error) {
	anonSecret, err := generateSecret(32)
	if err != nil {
		return "", err
	}
	anonSalt, err := generateSecret(16)
	if err != nil {
		return "", err
	}
	queueKey, err := generateSecret(32)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(sampleConfigTemplate, anonSecret, anonSalt, queueKey), nil
}

// sampleConfigTemplate is the generated configuration file. Values whose
// defaults suffice are left commented so the effective behavior stays
// obvious from the defaults code, and so the file round-trips through
// plain YAML parsers that cannot read duration strings.
const sampleConfigTemplate = `# spkeasy Configuration File
#
# Configures the spkeasy control plane: key custody, the trust graph, and
# the session services backing private posts and private profiles.
#
# Environment variables with the SPKEASY_ prefix override file values.
# Example: SPKEASY_LOGGING_LEVEL=DEBUG

# Logging configuration
logging:
  # Log level: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Log format: text or json
  format: "text"
  # Log output: stdout, stderr, or a file path
  output: "stdout"

# Maximum time to wait for graceful shutdown (HTTP listeners and
# in-flight queue jobs)
# shutdown_timeout: 30s

# OpenTelemetry distributed tracing (opt-in)
telemetry:
  enabled: false
  # OTLP gRPC collector endpoint
  # endpoint: "localhost:4317"
  # insecure: true
  # sample_rate: 1.0
  # Pyroscope continuous profiling (opt-in)
  profiling:
    enabled: false
    # endpoint: "http://localhost:4040"

# Prometheus metrics server (opt-in)
metrics:
  enabled: false
  # port: 9090

# Log anonymization. User identifiers are HMAC-hashed with this secret
# before they reach the logs. Generated at init; rotating the secret
# unlinks new log lines from old ones.
privacy:
  anonymization_secret: "%s"
  anonymization_salt: "%s"

# Identity verification
identity:
  # PDS hosts whose tokens are accepted without a handle proof. The
  # well-known hosts are always included; entries here add to them.
  # allowed_hosts:
  #   - pds.example.com
  cache_size: 10000
  # cache_ttl: 5m
  # fetch_timeout: 10s

# Shared job queue. The jobs table must live in the same physical
# database as the services publishing to it: the same SQLite file, or the
# same PostgreSQL database under a schema of its own.
queue:
  database:
    type: sqlite
    # sqlite:
    #   path: /var/lib/spkeasy/spkeasy.db
    # postgres:
    #   host: localhost
    #   port: 5432
    #   database: spkeasy
    #   user: spkeasy
    #   password: ""
    #   schema: pgboss
  workers: 4
  # poll_interval: 2s
  # retry_limit: 12
  # retry_delay: 60s
  # retry_backoff: true
  # max_payload_size: 1Mi
  # Encrypts sensitive payload fields (rotated private keys) at rest.
  # Generated at init. Can also be set via SPKEASY_QUEUE_ENCRYPTION_KEY.
  encryption_key: "%s"

# Peer service locations and shared secrets for inter-service calls.
# Fill in when the services run as separate processes.
peers:
  # request_timeout: 10s
  # urls:
  #   user-keys: "http://localhost:8081"
  #   trusted-users: "http://localhost:8082"
  #   private-sessions: "http://localhost:8083"
  #   private-profiles: "http://localhost:8084"
  # api_keys:
  #   user-keys: "<shared secret>"
  #   trusted-users: "<shared secret>"
  #   private-sessions: "<shared secret>"
  #   private-profiles: "<shared secret>"

# Services served by this process. Production runs one service per
# process and disables the rest; development can serve all four.
services:
  keys:
    enabled: true
    server:
      port: 8081
    database:
      type: sqlite
    # Minimum age of the current key pair before it may rotate again
    # rotate_min_age: 5m

  trust:
    enabled: true
    server:
      port: 8082
    database:
      type: sqlite
    # Trust edges allowed per author inside the quota window. Removed
    # edges still count; removal does not refund quota.
    quota: 10
    # quota_window: 24h
    # Undo window before a removal tears down session keys
    # bulk_delay: 2m

  private_sessions:
    enabled: true
    server:
      port: 8083
    database:
      type: sqlite
    rotation_batch: 100
    # session_ttl: 168h
    # add_window: 720h

  private_profiles:
    enabled: true
    server:
      port: 8084
    database:
      type: sqlite
    rotation_batch: 100
    # session_ttl: 168h
    # add_window: 8760h
`
