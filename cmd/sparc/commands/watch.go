package commands

import (
	"github.com/spf13/cobra"
)

// WatchCmd follows a job's status until a terminal state.
var WatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job's status until it completes or fails",
	Long: `Follow a running job over a live push channel with a polling
fallback. The channel is reopened automatically if it drops, and both the
channel and the poll timer are torn down once the job completes or fails.

Example:
  sparc watch 4f1c2d3e`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newAPIClient()
		if err != nil {
			return err
		}
		return followJob(cmd.Context(), client, cfg, args[0])
	},
}
