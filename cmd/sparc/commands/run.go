package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glbala87/SPARC/api"
)

// RunCmd starts the analysis pipeline for an uploaded job.
var RunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Start the analysis pipeline",
	Long: `Start the analysis pipeline for files previously uploaded under
the given job id.

Example:
  sparc run 4f1c2d3e --protocol 10x-3prime-v3 --min-genes 200 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		pc := api.DefaultPipelineConfig()
		pc.SampleName, _ = cmd.Flags().GetString("sample-name")
		pc.Protocol, _ = cmd.Flags().GetString("protocol")
		pc.MaxMismatch, _ = cmd.Flags().GetInt("max-mismatch")
		pc.MinGenes, _ = cmd.Flags().GetInt("min-genes")
		pc.MaxGenes, _ = cmd.Flags().GetInt("max-genes")
		pc.MaxMito, _ = cmd.Flags().GetFloat64("max-mito")
		pc.NPCs, _ = cmd.Flags().GetInt("n-pcs")
		pc.Resolution, _ = cmd.Flags().GetFloat64("resolution")

		client, cfg, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.StartPipeline(cmd.Context(), jobID, pc)
		if err != nil {
			return err
		}

		fmt.Printf("Pipeline %s: %s\n", resp.Status, resp.JobID)

		if follow, _ := cmd.Flags().GetBool("watch"); follow {
			return followJob(cmd.Context(), client, cfg, resp.JobID)
		}

		fmt.Printf("Follow progress with: sparc watch %s\n", resp.JobID)
		return nil
	},
}

func init() {
	defaults := api.DefaultPipelineConfig()
	RunCmd.Flags().String("sample-name", defaults.SampleName, "Sample name for output labeling")
	RunCmd.Flags().String("protocol", defaults.Protocol, "Sequencing protocol id (see server /api/protocols)")
	RunCmd.Flags().Int("max-mismatch", defaults.MaxMismatch, "Max barcode mismatches")
	RunCmd.Flags().Int("min-genes", defaults.MinGenes, "Minimum genes per cell")
	RunCmd.Flags().Int("max-genes", defaults.MaxGenes, "Maximum genes per cell")
	RunCmd.Flags().Float64("max-mito", defaults.MaxMito, "Maximum mitochondrial percentage")
	RunCmd.Flags().Int("n-pcs", defaults.NPCs, "Number of principal components")
	RunCmd.Flags().Float64("resolution", defaults.Resolution, "Clustering resolution")
	RunCmd.Flags().Bool("watch", false, "Follow the job until it completes or fails")
}
