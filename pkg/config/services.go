package config

import (
	"time"

	"github.com/spkeasy-social/spkeasy/pkg/store"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// ServicesConfig groups the per-service configurations. A process serves
// every service whose Enabled flag is true.
type ServicesConfig struct {
	// Keys configures the user-keys service (key pair custody, rotation)
	Keys KeysConfig `mapstructure:"keys" yaml:"keys"`

	// Trust configures the trusted-users service (trust graph, quotas)
	Trust TrustConfig `mapstructure:"trust" yaml:"trust"`

	// PrivateSessions configures the session service backing private posts
	PrivateSessions SessionServiceConfig `mapstructure:"private_sessions" yaml:"private_sessions"`

	// PrivateProfiles configures the session service backing private profiles
	PrivateProfiles SessionServiceConfig `mapstructure:"private_profiles" yaml:"private_profiles"`
}

// ServiceConfig carries the settings every service shares.
type ServiceConfig struct {
	// Enabled controls whether this process serves the service.
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Server configures the service's XRPC HTTP listener.
	Server xrpc.ServerConfig `mapstructure:"server" yaml:"server"`

	// Database is the service's own store. For transactional job
	// publishing it must share a physical database with the queue: the
	// same SQLite file, or the same PostgreSQL database with the
	// service's tables under their own schema.
	Database store.Config `mapstructure:"database" yaml:"database"`
}

// KeysConfig configures the user-keys service.
type KeysConfig struct {
	ServiceConfig `mapstructure:",squash" yaml:",inline"`

	// RotateMinAge is the minimum age the current key pair must reach
	// before it may be rotated again. Throttles rotation loops that would
	// flood the session services with re-encryption work.
	// Default: 5m
	RotateMinAge time.Duration `mapstructure:"rotate_min_age" yaml:"rotate_min_age"`
}

// TrustConfig configures the trusted-users service.
type TrustConfig struct {
	ServiceConfig `mapstructure:",squash" yaml:",inline"`

	// Quota is the maximum number of trust edges an author may create
	// inside QuotaWindow. Removed edges still count against it; removal
	// does not refund quota.
	// Default: 10
	Quota int `mapstructure:"quota" validate:"omitempty,min=1" yaml:"quota"`

	// QuotaWindow is the sliding window the quota is measured over.
	// Default: 24h
	QuotaWindow time.Duration `mapstructure:"quota_window" yaml:"quota_window"`

	// BulkDelay postpones the propagation jobs a trust removal enqueues,
	// leaving the author an undo window before session keys are torn down.
	// Default: 2m
	BulkDelay time.Duration `mapstructure:"bulk_delay" yaml:"bulk_delay"`
}

// SessionServiceConfig configures a session-owning service. The private
// sessions and private profiles deployments share this shape; only their
// defaults differ.
type SessionServiceConfig struct {
	ServiceConfig `mapstructure:",squash" yaml:",inline"`

	// SessionTTL is the lifetime stamped on newly created sessions.
	// Default: 168h (7 days)
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`

	// AddWindow bounds how far back a new trust edge reaches: only
	// sessions created inside the window receive keys for the new
	// recipient.
	// Default: 720h for private sessions, 8760h for private profiles
	AddWindow time.Duration `mapstructure:"add_window" yaml:"add_window"`

	// RotationBatch is how many session keys one key rotation pass
	// re-encrypts per database round trip.
	// Default: 100
	RotationBatch int `mapstructure:"rotation_batch" validate:"omitempty,min=1" yaml:"rotation_batch"`
}
