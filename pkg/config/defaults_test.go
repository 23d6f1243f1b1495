package config

import (
	"testing"
	"time"
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
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Identity(t *testing.T) {
	cfg := &Config{}
	cfg.Identity.AllowedHosts = []string{"PDS.Example.Com", "bsky.social", " "}
	ApplyDefaults(cfg)

	if cfg.Identity.CacheTTL != 5*time.Minute {
		t.Errorf("Expected default cache TTL 5m, got %v", cfg.Identity.CacheTTL)
	}
	if cfg.Identity.CacheSize != 10000 {
		t.Errorf("Expected default cache size 10000, got %d", cfg.Identity.CacheSize)
	}
	if cfg.Identity.FetchTimeout != 10*time.Second {
		t.Errorf("Expected default fetch timeout 10s, got %v", cfg.Identity.FetchTimeout)
	}

	// Defaults merged in, extras lowercased, duplicates and blanks dropped
	want := len(DefaultAllowedHosts) + 1
	if len(cfg.Identity.AllowedHosts) != want {
		t.Fatalf("Expected %d allowed hosts, got %v", want, cfg.Identity.AllowedHosts)
	}
	found := false
	for _, host := range cfg.Identity.AllowedHosts {
		if host == "pds.example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected lowercased extra host in %v", cfg.Identity.AllowedHosts)
	}
}

func TestApplyDefaults_Queue(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Queue.Database.Postgres.Schema != DefaultQueueSchema {
		t.Errorf("Expected default queue schema %q, got %q", DefaultQueueSchema, cfg.Queue.Database.Postgres.Schema)
	}
	// The queue's table reference follows its database schema
	if cfg.Queue.Schema != DefaultQueueSchema {
		t.Errorf("Expected queue table schema %q, got %q", DefaultQueueSchema, cfg.Queue.Schema)
	}
	if cfg.Queue.Workers != 4 {
		t.Errorf("Expected default workers 4, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.PollInterval != 2*time.Second {
		t.Errorf("Expected default poll interval 2s, got %v", cfg.Queue.PollInterval)
	}
	if cfg.Queue.RetryLimit != 12 {
		t.Errorf("Expected default retry limit 12, got %d", cfg.Queue.RetryLimit)
	}
}

func TestApplyDefaults_Services(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Services.Keys.Server.Port != DefaultKeysPort {
		t.Errorf("Expected default keys port %d, got %d", DefaultKeysPort, cfg.Services.Keys.Server.Port)
	}
	if cfg.Services.Keys.Database.Postgres.Schema != DefaultKeysSchema {
		t.Errorf("Expected default keys schema %q, got %q", DefaultKeysSchema, cfg.Services.Keys.Database.Postgres.Schema)
	}
	if cfg.Services.Keys.RotateMinAge != 5*time.Minute {
		t.Errorf("Expected default rotate min age 5m, got %v", cfg.Services.Keys.RotateMinAge)
	}

	if cfg.Services.Trust.Quota != 10 {
		t.Errorf("Expected default trust quota 10, got %d", cfg.Services.Trust.Quota)
	}
	if cfg.Services.Trust.QuotaWindow != 24*time.Hour {
		t.Errorf("Expected default quota window 24h, got %v", cfg.Services.Trust.QuotaWindow)
	}
	if cfg.Services.Trust.BulkDelay != 2*time.Minute {
		t.Errorf("Expected default bulk delay 2m, got %v", cfg.Services.Trust.BulkDelay)
	}

	if cfg.Services.PrivateSessions.SessionTTL != 7*24*time.Hour {
		t.Errorf("Expected default session TTL 168h, got %v", cfg.Services.PrivateSessions.SessionTTL)
	}
	if cfg.Services.PrivateSessions.AddWindow != 30*24*time.Hour {
		t.Errorf("Expected default sessions add window 720h, got %v", cfg.Services.PrivateSessions.AddWindow)
	}
	if cfg.Services.PrivateProfiles.AddWindow != 365*24*time.Hour {
		t.Errorf("Expected default profiles add window 8760h, got %v", cfg.Services.PrivateProfiles.AddWindow)
	}
	if cfg.Services.PrivateSessions.RotationBatch != 100 {
		t.Errorf("Expected default rotation batch 100, got %d", cfg.Services.PrivateSessions.RotationBatch)
	}

	if cfg.Services.Keys.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.Services.Keys.Server.ReadTimeout)
	}
	if cfg.Services.Keys.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.Services.Keys.Server.WriteTimeout)
	}
	if cfg.Services.Keys.Server.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.Services.Keys.Server.IdleTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "ERROR"
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Services.Keys.Server.Port = 9000
	cfg.Services.Trust.Quota = 50
	cfg.Services.PrivateSessions.AddWindow = time.Hour
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected explicit level 'ERROR' preserved, got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Services.Keys.Server.Port != 9000 {
		t.Errorf("Expected explicit port preserved, got %d", cfg.Services.Keys.Server.Port)
	}
	if cfg.Services.Trust.Quota != 50 {
		t.Errorf("Expected explicit quota preserved, got %d", cfg.Services.Trust.Quota)
	}
	if cfg.Services.PrivateSessions.AddWindow != time.Hour {
		t.Errorf("Expected explicit add window preserved, got %v", cfg.Services.PrivateSessions.AddWindow)
	}
}
