package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample spkeasy configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/spkeasy/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  spkeasyd config init

  # Initialize with custom path
  spkeasyd config init --config /etc/spkeasy/config.yaml

  # Force overwrite existing config
  spkeasyd config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configFile, _ := cmd.Flags().GetString("config")

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the services with: spkeasyd serve")
	fmt.Printf("  3. Or specify custom config: spkeasyd serve --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  Random secrets have been generated for the job queue and log anonymization.")
	fmt.Println("  For production, generate the queue key yourself and pass it via environment:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", config.EnvQueueEncryptionKey)

	return nil
}
