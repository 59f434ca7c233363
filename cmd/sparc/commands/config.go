package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glbala87/SPARC/config"
)

// ConfigCmd shows the effective client configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("[server]\n")
		fmt.Printf("base_url = %q\n\n", cfg.Server.BaseURL)
		fmt.Printf("[watch]\n")
		fmt.Printf("poll_interval_seconds = %d\n", cfg.Watch.PollIntervalSeconds)
		fmt.Printf("reconnect_delay_seconds = %d\n", cfg.Watch.ReconnectDelaySeconds)
		fmt.Printf("read_timeout_seconds = %d\n", cfg.Watch.ReadTimeoutSeconds)
		fmt.Printf("update_buffer = %d\n\n", cfg.Watch.UpdateBuffer)
		fmt.Printf("[http]\n")
		fmt.Printf("timeout_seconds = %d\n", cfg.HTTP.TimeoutSeconds)
		fmt.Printf("requests_per_minute = %d\n", cfg.HTTP.RequestsPerMinute)
		fmt.Printf("allow_private_hosts = %t\n", cfg.HTTP.AllowPrivateHosts)
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}
