// Package config holds runtime configuration for the GDB MCP bridge,
// populated by cmd/gdbmcp's cobra/viper wiring (flags, GDBMCP_* env vars,
// and defaults).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	GDBPath          string
	DefaultTimeoutMs int
	PostCommandDelayMs int
	MaxSessions      int
	StateDir         string
	DashboardPort    int
	Dashboard        bool
	SummaryModel     string
	Transport        string
	Verbose          bool
}

// Load reads configuration from viper, which merges flag values, env vars
// (bound under the GDBMCP_ prefix), and defaults set up by the cobra
// command in cmd/gdbmcp.
func Load() Config {
	return Config{
		GDBPath:            viper.GetString("gdb_path"),
		DefaultTimeoutMs:   viper.GetInt("default_timeout_ms"),
		PostCommandDelayMs: viper.GetInt("post_command_delay_ms"),
		MaxSessions:        viper.GetInt("max_sessions"),
		StateDir:           viper.GetString("state_dir"),
		DashboardPort:      viper.GetInt("dashboard_port"),
		Dashboard:          viper.GetBool("dashboard"),
		SummaryModel:       viper.GetString("summary_model"),
		Transport:          viper.GetString("transport"),
		Verbose:            viper.GetBool("verbose"),
	}
}

// DefaultTimeout returns DefaultTimeoutMs as a time.Duration, falling back
// to 10s when unset.
func (c Config) DefaultTimeout() time.Duration {
	if c.DefaultTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// PostCommandDelay returns PostCommandDelayMs as a time.Duration, falling
// back to 2s when unset (spec.md §4.4 step 3 default).
func (c Config) PostCommandDelay() time.Duration {
	if c.PostCommandDelayMs <= 0 {
		return 2000 * time.Millisecond
	}
	return time.Duration(c.PostCommandDelayMs) * time.Millisecond
}
