package config

import "time"

// Config represents the full orchestrate configuration
type Config struct {
	// Store configuration
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Retention windows for the archival passes
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`

	// Telemetry capture and ledger
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Queue-change notifications
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`

	// Consistency auditor
	Health HealthConfig `yaml:"health" mapstructure:"health"`
}

// StoreConfig selects the queue backend and bounds lock waits
type StoreConfig struct {
	// Backend is "json" (data/claude_task_queue.json) or "bolt"
	Backend     string        `yaml:"backend" mapstructure:"backend"`
	BoltPath    string        `yaml:"bolt_path" mapstructure:"bolt_path"`
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// RetentionConfig configures age-based archival
type RetentionConfig struct {
	LogDays          int `yaml:"log_days" mapstructure:"log_days"`
	ExecutionLogDays int `yaml:"execution_log_days" mapstructure:"execution_log_days"`
}

// TelemetryConfig configures the completion hook and usage ledger
type TelemetryConfig struct {
	// Sentinel is the substring that marks a completion command in a Bash tool call
	Sentinel    string `yaml:"sentinel" mapstructure:"sentinel"`
	Ledger      string `yaml:"ledger" mapstructure:"ledger"`
	WeeklyLimit int64  `yaml:"weekly_limit" mapstructure:"weekly_limit"`
}

// NotifyConfig configures Redis pub/sub notifications. An empty address
// disables them.
type NotifyConfig struct {
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	Channel       string `yaml:"channel" mapstructure:"channel"`
}

// HealthConfig configures the consistency auditor
type HealthConfig struct {
	Processes   []string      `yaml:"processes" mapstructure:"processes"`
	StaleMarker time.Duration `yaml:"stale_marker" mapstructure:"stale_marker"`
}
