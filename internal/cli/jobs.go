package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avelling/shelfsync/internal/client"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs <job-id>",
	Short: "Show the status of a server-side import job",
	Long: `Show the current status of an import job on the shelfsync server.

Useful when an import was interrupted locally: the server keeps
processing, and the job can be inspected (and its results fetched on a
later import) as long as the server retains them.

Examples:
  shelfsync jobs 7f3da2c1`,
	Args: cobra.ExactArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	ctx := context.Background()

	status, err := apiClient.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job status: %w", err)
	}

	fmt.Printf("Job %s: %s\n", jobID, status.Status)

	switch status.Status {
	case client.JobStateProcessing:
		fmt.Printf("  Progress: %.0f%%\n", status.Progress*100)
		if status.Message != "" {
			fmt.Printf("  %s\n", status.Message)
		}
	case client.JobStateCompleted:
		if status.ResultID != "" {
			fmt.Printf("  Result id: %s\n", status.ResultID)
		}
		if len(status.Books) > 0 {
			fmt.Printf("  Books:  %d\n", len(status.Books))
		}
		if len(status.Errors) > 0 {
			fmt.Printf("  Row errors: %d\n", len(status.Errors))
			if verbose {
				for _, e := range status.Errors {
					fmt.Printf("    • %s: %s\n", e.Title, e.Message)
				}
			}
		}
	case client.JobStateFailed:
		if status.Error != "" {
			fmt.Printf("  Error: %s\n", status.Error)
		}
	}

	return nil
}
