package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// UploadCmd uploads FASTQ and whitelist files to the server.
var UploadCmd = &cobra.Command{
	Use:   "upload <r1.fastq.gz> [r2.fastq.gz]",
	Short: "Upload FASTQ and whitelist files",
	Long: `Upload FASTQ files (and optionally a barcode whitelist) to the
SPARC server. The server assigns a job id used by all later commands.

Example:
  sparc upload sample_R1.fastq.gz sample_R2.fastq.gz --whitelist 3M-february-2018.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		whitelist, _ := cmd.Flags().GetString("whitelist")

		r1 := args[0]
		r2 := ""
		if len(args) > 1 {
			r2 = args[1]
		}

		client, _, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.Upload(cmd.Context(), r1, r2, whitelist)
		if err != nil {
			return err
		}

		fmt.Printf("Upload accepted\n")
		fmt.Printf("  Job ID: %s\n", resp.JobID)
		for field, path := range resp.Files {
			if path != "" {
				fmt.Printf("  %s: %s\n", field, path)
			}
		}
		fmt.Printf("\nStart the pipeline with: sparc run %s\n", resp.JobID)
		return nil
	},
}

func init() {
	UploadCmd.Flags().String("whitelist", "", "Barcode whitelist file to upload alongside the reads")
}
