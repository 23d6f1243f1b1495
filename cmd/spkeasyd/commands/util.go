package commands

import (
	"fmt"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/config"
)

// InitLogger initializes the structured logger from configuration,
// including the anonymization key applied to user identifiers in logs.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetAnonymizationKey(cfg.Privacy.AnonymizationSecret, cfg.Privacy.AnonymizationSalt)
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
