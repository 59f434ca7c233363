package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/glbala87/SPARC/cmd/sparc/commands"
	"github.com/glbala87/SPARC/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sparc",
	Short: "SPARC - single-cell analysis client",
	Long: `SPARC - client for the SPARC single-cell RNA-seq analysis server.

Upload FASTQ files, start the analysis pipeline and follow a job's
progress over a live push channel with a polling fallback.

Available commands:
  upload - Upload FASTQ and whitelist files, returns a job id
  run    - Start the analysis pipeline for an uploaded job
  status - Fetch a one-shot status snapshot
  watch  - Follow a job's status until it completes or fails
  config - Show the effective client configuration

Examples:
  sparc upload sample_R1.fastq.gz sample_R2.fastq.gz
  sparc run <job-id> --protocol 10x-3prime-v3 --watch
  sparc watch <job-id>
  sparc status <job-id>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOut); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose, _ := cmd.Flags().GetCount("verbose"); verbose > 0 {
			if err := logger.SetLevel(zapcore.DebugLevel); err != nil {
				return fmt.Errorf("failed to set log level: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.UploadCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
