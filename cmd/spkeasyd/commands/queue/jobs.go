package queue

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/internal/cli/output"
	"github.com/spkeasy-social/spkeasy/internal/cli/timeutil"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

var (
	jobsState  string
	jobsName   string
	jobsLimit  int
	jobsOutput string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs by state",
	Long: `List queue jobs filtered by state, newest first.

Examples:
  # List failed jobs
  spkeasyd queue jobs

  # List pending jobs for one handler
  spkeasyd queue jobs --state created --name private-sessions.add-recipient-to-sessions

  # List as JSON
  spkeasyd queue jobs -o json`,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsState, "state", "failed", "Job state (created|active|completed|failed)")
	jobsCmd.Flags().StringVar(&jobsName, "name", "", "Filter by job name")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 100, "Maximum number of jobs to list")
	jobsCmd.Flags().StringVarP(&jobsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// JobList is a list of jobs for table rendering.
type JobList []*queue.Job

// Headers implements TableRenderer.
func (jl JobList) Headers() []string {
	return []string{"ID", "NAME", "STATE", "ATTEMPTS", "AGE", "LAST ERROR"}
}

// Rows implements TableRenderer.
func (jl JobList) Rows() [][]string {
	rows := make([][]string, 0, len(jl))
	for _, j := range jl {
		lastError := "-"
		if j.LastError != nil {
			lastError = truncate(*j.LastError, 80)
		}
		attempts := fmt.Sprintf("%d/%d", j.AttemptCount, j.RetryLimit)
		rows = append(rows, []string{
			j.ID,
			j.Name,
			string(j.State),
			attempts,
			timeutil.FormatAge(j.CreatedAt),
			lastError,
		})
	}
	return rows
}

func runJobs(cmd *cobra.Command, args []string) error {
	state, err := parseState(jobsState)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(jobsOutput)
	if err != nil {
		return err
	}

	q, cleanup, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs, err := q.ListJobs(cmd.Context(), state, jobsName, jobsLimit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, jobs)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, jobs)
	default:
		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		return output.PrintTable(os.Stdout, JobList(jobs))
	}
}

func parseState(s string) (queue.State, error) {
	switch state := queue.State(s); state {
	case queue.StateCreated, queue.StateActive, queue.StateCompleted, queue.StateFailed:
		return state, nil
	default:
		return "", fmt.Errorf("unknown job state %q (expected created, active, completed or failed)", s)
	}
}

// truncate shortens s for table display. Full values are available via
// JSON or YAML output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
