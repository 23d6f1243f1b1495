// Package queue implements job queue administration subcommands.
package queue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/pkg/config"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/store"
)

// Cmd is the queue subcommand.
var Cmd = &cobra.Command{
	Use:   "queue",
	Short: "Job queue administration",
	Long: `Inspect and administer the durable job queue.

Jobs that exhaust their retry budget stay quarantined in the failed state
until an operator requeues them. Use these subcommands to find stuck work
and retry it.

Subcommands:
  jobs   List jobs by state
  stats  Show job counts per state
  retry  Requeue a failed job`,
}

func init() {
	Cmd.AddCommand(jobsCmd)
	Cmd.AddCommand(statsCmd)
	Cmd.AddCommand(retryCmd)
}

// openQueue opens the queue database named by the configuration, without
// starting workers. The returned cleanup closes the connection.
func openQueue(cmd *cobra.Command) (*queue.Queue, func(), error) {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(&cfg.Queue.Database, &queue.Job{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	queueCfg := cfg.Queue.Config
	queueCfg.EncryptionKey = cfg.Queue.GetEncryptionKey()
	q, err := queue.New(db, queueCfg, nil)
	if err != nil {
		_ = store.Close(db)
		return nil, nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	cleanup := func() {
		_ = store.Close(db)
	}
	return q, cleanup, nil
}
