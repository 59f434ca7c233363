package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glbala87/SPARC/errors"
)

// StatusCmd fetches a one-shot status snapshot.
var StatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch a one-shot status snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		client, _, err := newAPIClient()
		if err != nil {
			return err
		}

		snap, err := client.Status(cmd.Context(), jobID)
		if err != nil {
			if errors.IsJobNotFound(err) {
				return errors.Newf("job %s not found on server", jobID)
			}
			return err
		}

		fmt.Printf("Job:      %s\n", snap.JobID)
		fmt.Printf("Status:   %s\n", snap.Status)
		fmt.Printf("Progress: %.0f%%\n", snap.Progress*100)
		if snap.Message != "" {
			fmt.Printf("Message:  %s\n", snap.Message)
		}
		for k, v := range snap.Result {
			fmt.Printf("  %s: %v\n", k, v)
		}
		return nil
	},
}
