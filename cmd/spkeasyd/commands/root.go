// Package commands implements the CLI commands for the spkeasy daemon.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/cmd/spkeasyd/commands/config"
	"github.com/spkeasy-social/spkeasy/cmd/spkeasyd/commands/queue"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "spkeasyd",
	Short: "spkeasy - control plane for end-to-end encrypted social content",
	Long: `spkeasyd serves the spkeasy control plane: ML-KEM-768 keypair custody
and distribution, the trust graph, and the session services backing private
posts and private profiles, connected by a durable job queue.

One process can serve any subset of the four services; the configuration
file decides which. Production runs one service per process, development
runs all four against a single SQLite file.

Use "spkeasyd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/spkeasy/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(queue.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
