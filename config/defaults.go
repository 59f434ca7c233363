package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.base_url", "http://localhost:8000")

	// Watch (job status synchronization) defaults
	v.SetDefault("watch.poll_interval_seconds", 2)   // Status snapshot fallback interval
	v.SetDefault("watch.reconnect_delay_seconds", 5) // Delay before reopening a dropped channel
	v.SetDefault("watch.read_timeout_seconds", 90)   // Max silence before the channel is considered dead
	v.SetDefault("watch.update_buffer", 64)          // Buffered status updates per subscriber

	// HTTP client defaults
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.requests_per_minute", 120)
	v.SetDefault("http.allow_private_hosts", true) // Local analysis servers are the common case
}
