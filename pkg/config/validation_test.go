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

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Services.Keys.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_SampleRateRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate above 1.0")
	}
	if !strings.Contains(err.Error(), "lte") {
		t.Errorf("Expected 'lte' validation error, got: %v", err)
	}
}

func TestValidate_TelemetryNeedsEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry without endpoint")
	}
}

func TestValidate_ProfilingNeedsEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.Enabled = true
	cfg.Telemetry.Profiling.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for profiling without endpoint")
	}
}

func TestValidate_UnknownPeerService(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Peers.URLs = map[string]string{"bogus": "http://localhost:9999"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown peer service")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("Expected error to name the unknown service, got: %v", err)
	}
}

func TestValidate_KnownPeerServices(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Peers.URLs = map[string]string{
		"user-keys":        "http://localhost:8081",
		"trusted-users":    "http://localhost:8082",
		"private-sessions": "http://localhost:8083",
		"private-profiles": "http://localhost:8084",
	}
	cfg.Peers.APIKeys = map[string]string{
		"user-keys": "secret",
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected known peer services to pass validation, got: %v", err)
	}
}

func TestValidate_TrustQuotaMinimum(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Services.Trust.Quota = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative trust quota")
	}
	if !strings.Contains(err.Error(), "min") {
		t.Errorf("Expected 'min' validation error, got: %v", err)
	}
}
