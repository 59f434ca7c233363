// Package config loads SPARC client configuration using Viper.
//
// Precedence (lowest to highest): defaults < user config (~/.sparc/config.toml)
// < project config (sparc.toml, found by upward search) < environment
// variables (SPARC_ prefix).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/glbala87/SPARC/errors"
)

// Config is the SPARC client configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Watch  WatchConfig  `mapstructure:"watch"`
	HTTP   HTTPConfig   `mapstructure:"http"`
}

// ServerConfig identifies the SPARC analysis server.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// WatchConfig controls the job status synchronization engine.
type WatchConfig struct {
	PollIntervalSeconds   int `mapstructure:"poll_interval_seconds"`
	ReconnectDelaySeconds int `mapstructure:"reconnect_delay_seconds"`
	ReadTimeoutSeconds    int `mapstructure:"read_timeout_seconds"`
	UpdateBuffer          int `mapstructure:"update_buffer"`
}

// HTTPConfig controls the REST client used for uploads and status polling.
type HTTPConfig struct {
	TimeoutSeconds    int  `mapstructure:"timeout_seconds"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// PollInterval returns the poll fallback interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalSeconds) * time.Second
}

// ReconnectDelay returns the delay before a dropped channel is reopened.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Watch.ReconnectDelaySeconds) * time.Second
}

// ReadTimeout returns how long a channel read may go without traffic
// (including heartbeats) before the connection is considered dead.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Watch.ReadTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-request timeout for the REST client.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the SPARC configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadWithViper loads configuration using a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("SPARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Merge configs in precedence order: user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for sparc.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, "sparc.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in precedence order
// (lowest to highest): user < project.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	configPaths := []string{
		filepath.Join(homeDir, ".sparc", "config.toml"),
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err == nil {
			for key, value := range tempViper.AllSettings() {
				v.Set(key, value)
			}
		}
	}
}
