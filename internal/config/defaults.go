package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     BackendJSON,
			BoltPath:    "data/claude_task_queue.db",
			LockTimeout: 10 * time.Second,
		},
		Retention: RetentionConfig{
			LogDays:          30,
			ExecutionLogDays: 1,
		},
		Telemetry: TelemetryConfig{
			Sentinel:    "orchestrate complete",
			Ledger:      "data/telemetry.db",
			WeeklyLimit: 200000,
		},
		Notify: NotifyConfig{
			Channel: "orchestrate:queue",
		},
		Health: HealthConfig{
			Processes:   []string{"claude"},
			StaleMarker: 30 * time.Minute,
		},
	}
}

// WriteDefault writes the default configuration file, creating its directory
func WriteDefault(path string) error {
	content := `# orchestrate configuration

store:
  backend: json  # "json" (data/claude_task_queue.json) or "bolt"
  bolt_path: data/claude_task_queue.db
  lock_timeout: 10s

retention:
  # Log entries older than this many days move to data/thread_log_archive.json
  log_days: 30
  # Execution log entries older than this many days move to data/execution_archive/
  execution_log_days: 1

telemetry:
  # Bash commands containing this text trigger transcript capture
  sentinel: "orchestrate complete"
  ledger: data/telemetry.db  # empty disables the ledger
  weekly_limit: 200000

# Redis pub/sub for queue changes (disabled when redis_addr is empty)
notify:
  redis_addr: ""
  channel: "orchestrate:queue"

health:
  processes:
    - claude
  stale_marker: 30m
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
