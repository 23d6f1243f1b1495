package queue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spkeasy-social/spkeasy/internal/cli/prompt"
	"github.com/spkeasy-social/spkeasy/internal/cli/timeutil"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

var retryYes bool

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job",
	Long: `Requeue a failed job so workers pick it up again.

The job's attempt counter is reset, giving it a full retry budget.

Examples:
  # Retry a job with confirmation
  spkeasyd queue retry 4f9c2d1e-8a3b-4c5d-9e6f-7a8b9c0d1e2f

  # Retry without prompting
  spkeasyd queue retry 4f9c2d1e-8a3b-4c5d-9e6f-7a8b9c0d1e2f --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&retryYes, "yes", false, "Skip confirmation prompt")
}

func runRetry(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	q, cleanup, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := q.GetJob(cmd.Context(), jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}
	if job.State != queue.StateFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, job.State)
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Name:     %s\n", job.Name)
	fmt.Printf("Attempts: %d/%d\n", job.AttemptCount, job.RetryLimit)
	fmt.Printf("Created:  %s\n", timeutil.FormatTime(job.CreatedAt))
	if job.LastError != nil {
		fmt.Printf("Error:    %s\n", *job.LastError)
	}

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Retry job '%s'?", job.Name), retryYes)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := q.RetryJob(cmd.Context(), jobID); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", jobID, err)
	}

	fmt.Printf("Job %s requeued.\n", jobID)
	return nil
}
