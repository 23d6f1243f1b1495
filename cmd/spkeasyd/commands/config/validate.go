package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/pkg/config"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the spkeasy configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  spkeasyd config validate

  # Validate specific config file
  spkeasyd config validate --config /etc/spkeasy/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check queue payloads will be encrypted at rest
	if cfg.Queue.GetEncryptionKey() == "" {
		warnings = append(warnings, "Queue encryption key not configured - job payloads will be stored in plaintext")
	}

	// Check log anonymization is configured
	if cfg.Privacy.AnonymizationSecret == "" {
		warnings = append(warnings, "Anonymization secret not configured - log pseudonyms will not be stable across restarts")
	}

	// Session services depend on peer services for trust checks and keys
	if cfg.Services.PrivateSessions.Enabled || cfg.Services.PrivateProfiles.Enabled {
		for _, peer := range []string{lexicon.ServiceTrust, lexicon.ServiceKeys} {
			if cfg.Peers.URLs[peer] == "" {
				warnings = append(warnings, fmt.Sprintf("No peer URL configured for %s - session propagation will fail", peer))
			}
		}
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:    %s\n", cfg.Queue.Database.Type)
	fmt.Printf("  Enabled services: %s\n", strings.Join(config.EnabledServices(cfg), ", "))
	fmt.Printf("  Log level:        %s\n", cfg.Logging.Level)

	return nil
}
