package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvRoot names the environment variable that overrides the working directory
// as installation root.
const EnvRoot = "ORCHESTRATE_ROOT"

const envPrefix = "ORCHESTRATE"

// keys lists every setting that may be overridden from the environment
var keys = []string{
	"store.backend",
	"store.bolt_path",
	"store.lock_timeout",
	"retention.log_days",
	"retention.execution_log_days",
	"telemetry.sentinel",
	"telemetry.ledger",
	"telemetry.weekly_limit",
	"notify.redis_addr",
	"notify.redis_password",
	"notify.redis_db",
	"notify.channel",
	"health.processes",
	"health.stale_marker",
}

// ResolveRoot picks the installation root: the explicit flag value, then
// ORCHESTRATE_ROOT, then the working directory. The result is absolute.
func ResolveRoot(flagValue string) (string, error) {
	root := flagValue
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		root = cwd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	return abs, nil
}

// Load reads <root>/.env and <root>/.orchestrate/config.yaml over the
// defaults and applies ORCHESTRATE_* environment overrides. Missing files
// are not an error.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	// .env never overrides variables already set in the environment
	envFile := filepath.Join(root, ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	path := ConfigPath(root)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can act on
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendJSON, BackendBolt:
	default:
		return fmt.Errorf("invalid store.backend %q (want %q or %q)", c.Store.Backend, BackendJSON, BackendBolt)
	}
	if c.Retention.LogDays < 0 || c.Retention.ExecutionLogDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if c.Store.LockTimeout <= 0 {
		return fmt.Errorf("store.lock_timeout must be positive")
	}
	return nil
}

// ConfigPath returns the path of the configuration file under root
func ConfigPath(root string) string {
	return filepath.Join(root, ".orchestrate", "config.yaml")
}
