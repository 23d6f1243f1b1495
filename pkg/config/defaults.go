package config

import (
	"strings"
	"time"
)

// DefaultAllowedHosts are the PDS hosts whose tokens every deployment
// accepts without a handle proof. They are always part of the effective
// allow-list.
var DefaultAllowedHosts = []string{"bsky.social", "blacksky.app", "bsky.network"}

// Default PostgreSQL schema names. Each service keeps its tables under its
// own schema so one physical database can host the whole deployment.
const (
	DefaultQueueSchema           = "pgboss"
	DefaultKeysSchema            = "user_keys"
	DefaultTrustSchema           = "trusted_users"
	DefaultPrivateSessionsSchema = "private_sessions"
	DefaultPrivateProfilesSchema = "private_profiles"
)

// Default XRPC ports, one per service so a development deployment can run
// all four in one process.
const (
	DefaultKeysPort            = 8081
	DefaultTrustPort           = 8082
	DefaultPrivateSessionsPort = 8083
	DefaultPrivateProfilesPort = 8084
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyIdentityDefaults(&cfg.Identity)
	applyQueueDefaults(&cfg.Queue)
	applyPeersDefaults(&cfg.Peers)
	applyServicesDefaults(&cfg.Services)
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
	// No need to set, zero value is false

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)
	// No need to set, zero value is false

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

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyIdentityDefaults sets identity verification defaults. The default
// allow-list is merged in rather than replaced: a deployment can add PDS
// hosts but never drop the well-known ones.
func applyIdentityDefaults(cfg *IdentityConfig) {
	cfg.AllowedHosts = mergeAllowedHosts(cfg.AllowedHosts)

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 10000
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
}

// mergeAllowedHosts prepends the default hosts to the configured extras,
// lowercasing and deduplicating.
func mergeAllowedHosts(extra []string) []string {
	merged := make([]string, 0, len(DefaultAllowedHosts)+len(extra))
	seen := make(map[string]bool, len(DefaultAllowedHosts)+len(extra))

	for _, host := range DefaultAllowedHosts {
		if !seen[host] {
			seen[host] = true
			merged = append(merged, host)
		}
	}
	for _, host := range extra {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" && !seen[host] {
			seen[host] = true
			merged = append(merged, host)
		}
	}

	return merged
}

// applyQueueDefaults sets queue defaults. The queue's table reference
// follows its database schema so services on other connections can reach
// the jobs table.
func applyQueueDefaults(cfg *QueueConfig) {
	cfg.Database.ApplyDefaults()
	if cfg.Database.Postgres.Schema == "" {
		cfg.Database.Postgres.Schema = DefaultQueueSchema
	}

	cfg.Config.ApplyDefaults()
	if cfg.Schema == "" {
		cfg.Schema = cfg.Database.Postgres.Schema
	}
}

// applyPeersDefaults sets inter-service client defaults.
func applyPeersDefaults(cfg *PeersConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
}

// applyServicesDefaults sets per-service defaults.
func applyServicesDefaults(cfg *ServicesConfig) {
	applyServiceDefaults(&cfg.Keys.ServiceConfig, DefaultKeysPort, DefaultKeysSchema)
	if cfg.Keys.RotateMinAge == 0 {
		cfg.Keys.RotateMinAge = 5 * time.Minute
	}

	applyServiceDefaults(&cfg.Trust.ServiceConfig, DefaultTrustPort, DefaultTrustSchema)
	if cfg.Trust.Quota == 0 {
		cfg.Trust.Quota = 10
	}
	if cfg.Trust.QuotaWindow == 0 {
		cfg.Trust.QuotaWindow = 24 * time.Hour
	}
	if cfg.Trust.BulkDelay == 0 {
		cfg.Trust.BulkDelay = 2 * time.Minute
	}

	applyServiceDefaults(&cfg.PrivateSessions.ServiceConfig, DefaultPrivateSessionsPort, DefaultPrivateSessionsSchema)
	applySessionServiceDefaults(&cfg.PrivateSessions, 30*24*time.Hour)

	applyServiceDefaults(&cfg.PrivateProfiles.ServiceConfig, DefaultPrivateProfilesPort, DefaultPrivateProfilesSchema)
	applySessionServiceDefaults(&cfg.PrivateProfiles, 365*24*time.Hour)
}

// applyServiceDefaults sets the defaults every service shares.
func applyServiceDefaults(cfg *ServiceConfig, port int, schema string) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = port
	}
	cfg.Server.ApplyDefaults()

	cfg.Database.ApplyDefaults()
	if cfg.Database.Postgres.Schema == "" {
		cfg.Database.Postgres.Schema = schema
	}
}

// applySessionServiceDefaults sets the defaults the two session services
// share. Profiles keep a much longer add window than posts: a profile
// stays relevant for as long as the author keeps it up.
func applySessionServiceDefaults(cfg *SessionServiceConfig, addWindow time.Duration) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.AddWindow == 0 {
		cfg.AddWindow = addWindow
	}
	if cfg.RotationBatch == 0 {
		cfg.RotationBatch = 100
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}

	// True-by-default flags that ApplyDefaults cannot express
	cfg.Queue.RetryBackoff = true
	cfg.Services.Keys.Enabled = true
	cfg.Services.Trust.Enabled = true
	cfg.Services.PrivateSessions.Enabled = true
	cfg.Services.PrivateProfiles.Enabled = true

	ApplyDefaults(cfg)
	return cfg
}
