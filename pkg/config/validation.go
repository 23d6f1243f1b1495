package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

// Validate checks the configuration for invalid values.
//
// Field-level rules live in `validate` struct tags; rules spanning fields
// that tags cannot express are checked here. Validation never mutates the
// configuration; normalization belongs to ApplyDefaults.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	for service := range cfg.Peers.URLs {
		if !lexicon.KnownService(service) {
			return fmt.Errorf("peers.urls names unknown service %q", service)
		}
	}
	for service := range cfg.Peers.APIKeys {
		if !lexicon.KnownService(service) {
			return fmt.Errorf("peers.api_keys names unknown service %q", service)
		}
	}

	return nil
}

// formatValidationError renders validator errors with the failing rule
// visible, e.g. `Config.Logging.Level failed on the "oneof" rule`.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on the %q rule", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
