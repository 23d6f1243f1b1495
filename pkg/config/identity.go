package config

import "time"

// IdentityConfig configures verification of user principals.
//
// Services accept JWTs minted by a user's PDS. Tokens from allow-listed
// hosts are trusted directly; any other host must prove it serves the
// token subject's handle before its tokens are accepted.
type IdentityConfig struct {
	// AllowedHosts are PDS hosts whose tokens are accepted without a
	// handle proof. The defaults are always included; configuring this
	// field adds hosts, it cannot remove the defaults.
	// Default: bsky.social, blacksky.app, bsky.network
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`

	// CacheTTL bounds how long a verified (did, handle) pair is reused
	// before the PDS is consulted again. Keeps revocation lag within one
	// TTL while absorbing the per-request verification cost.
	// Default: 5m
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// CacheSize is the maximum number of cached verifications.
	// Default: 10000
	CacheSize int `mapstructure:"cache_size" validate:"omitempty,min=1" yaml:"cache_size"`

	// FetchTimeout bounds each outbound PDS call made during verification.
	// Default: 10s
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// PrivacyConfig controls how user identifiers appear in logs.
//
// DIDs and handles are never logged raw. They are HMAC-hashed with the
// configured secret first, so operators can correlate log lines about the
// same user without being able to read who the user is.
type PrivacyConfig struct {
	// AnonymizationSecret keys the HMAC applied to identifiers before
	// logging. Rotating it unlinks new log lines from old ones. When
	// empty, a process-random key is used and log lines cannot be
	// correlated across restarts.
	AnonymizationSecret string `mapstructure:"anonymization_secret" validate:"omitempty,min=32" yaml:"anonymization_secret,omitempty"`

	// AnonymizationSalt is mixed into the HMAC alongside the secret.
	AnonymizationSalt string `mapstructure:"anonymization_salt" yaml:"anonymization_salt,omitempty"`
}

// PeersConfig tells a deployment where the other services live and how to
// authenticate to them.
type PeersConfig struct {
	// URLs maps service names to base URLs, e.g.
	// "user-keys": "http://localhost:8081". A service needs entries for
	// every peer it calls; the session services call user-keys and
	// trusted-users during propagation.
	URLs map[string]string `mapstructure:"urls" yaml:"urls,omitempty"`

	// APIKeys maps service names to shared secrets. A deployment
	// authenticates outbound calls with its own entry and verifies
	// inbound service principals against the others. All cooperating
	// deployments must agree on these values.
	APIKeys map[string]string `mapstructure:"api_keys" yaml:"api_keys,omitempty"`

	// RequestTimeout bounds each inter-service call.
	// Default: 10s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// URLFor returns the configured base URL for a peer service, or empty
// string when the peer is not configured.
func (p *PeersConfig) URLFor(service string) string {
	return p.URLs[service]
}

// APIKeyFor returns the shared secret for a service, or empty string when
// none is configured.
func (p *PeersConfig) APIKeyFor(service string) string {
	return p.APIKeys[service]
}
