package queue

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/internal/cli/output"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per state",
	Long: `Show how many jobs the queue holds in each state.

A growing created count means workers are not keeping up; a non-zero
failed count means jobs exhausted their retries and await an operator.

Examples:
  # Show queue depth
  spkeasyd queue stats

  # Show as JSON
  spkeasyd queue stats -o json`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}

	q, cleanup, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	counts, err := q.CountStates(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count jobs: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, counts)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, counts)
	default:
		pairs := make([][2]string, 0, 4)
		for _, state := range []queue.State{queue.StateCreated, queue.StateActive, queue.StateCompleted, queue.StateFailed} {
			pairs = append(pairs, [2]string{string(state), fmt.Sprintf("%d", counts[state])})
		}
		return output.SimpleTable(os.Stdout, pairs)
	}
}
