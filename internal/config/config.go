// Package config holds process-wide settings for the coderefine engine:
// the knobs that apply to the whole process rather than to one session's
// `start` payload (dashboard port, audit database path, default probe
// timeout and EMA alpha, log verbosity, optional summary model). There is
// no process-wide default for probe weights.
package config

import "github.com/spf13/viper"

// Version is the build version string, overridable via -ldflags.
var Version = "dev"

// Config holds all process-wide runtime configuration.
type Config struct {
	AuditDBPath      string
	DashboardPort    int
	DashboardEnabled bool
	DefaultTimeout   int
	DefaultEMAAlpha  float64
	LogVerbose       bool
	SummaryModel     string
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/coderefine).
func Load() Config {
	return Config{
		AuditDBPath:      viper.GetString("audit_db_path"),
		DashboardPort:    viper.GetInt("dashboard_port"),
		DashboardEnabled: viper.GetBool("dashboard_enabled"),
		DefaultTimeout:   viper.GetInt("default_timeout"),
		DefaultEMAAlpha:  viper.GetFloat64("default_ema_alpha"),
		LogVerbose:       viper.GetBool("verbose"),
		SummaryModel:     viper.GetString("summary_model"),
	}
}
