// Package config loads the sensor's runtime configuration with
// viper, the ambient config layer this project adopts in place of the
// teacher's hardware-specific environment variables (snf.OpenHandle's
// SNF_NUM_RINGS etc. in examples/sniffer/main.go), generalized to a
// YAML-or-env-backed struct matching spec.md §6's key table.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every recognized key from spec.md §6 plus the
// constants of its "Constants" paragraph, given concrete field names.
type Config struct {
	MonitorInterface   string `mapstructure:"monitor_interface"`
	CaptureFilter      string `mapstructure:"capture_filter"`
	UseMultiprocessing bool   `mapstructure:"use_multiprocessing"`
	UpdatePeriodSec    int    `mapstructure:"update_period"`
	ServerUpdate       string `mapstructure:"server_update"`

	SnapLen                    int32 `mapstructure:"snap_len"`
	BufferLength               int   `mapstructure:"buffer_length"`
	NoSuchNamePerHourThreshold int   `mapstructure:"no_such_name_per_hour_threshold"`

	LogDir string `mapstructure:"log_dir"`
}

// defaults mirrors the constants spec.md §6 names without binding
// them to any particular deployment.
func defaults(v *viper.Viper) {
	v.SetDefault("monitor_interface", "eth0")
	v.SetDefault("capture_filter", "")
	v.SetDefault("use_multiprocessing", true)
	v.SetDefault("update_period", 300)
	v.SetDefault("server_update", "")
	v.SetDefault("snap_len", 65535)
	v.SetDefault("buffer_length", 1024)
	v.SetDefault("no_such_name_per_hour_threshold", 10)
	v.SetDefault("log_dir", "/var/log/sentinel")
}

// Load reads configuration from (in ascending precedence) built-in
// defaults, a config file at path (if non-empty and present), and
// environment variables prefixed SENTINEL_ (e.g. SENTINEL_MONITOR_INTERFACE).
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("sentinel")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
