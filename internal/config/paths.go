package config

import "path/filepath"

// Paths holds every store location, derived once from the installation root.
type Paths struct {
	Root string

	Queue         string
	Archive       string
	ThreadLog     string
	WorkingMemory string
	LogArchive    string

	ExecutionLog     string
	ExecutionArchive string

	TelemetrySlot string
	TelemetryDir  string
	Ledger        string

	Marker string
	Bolt   string
}

// NewPaths derives store paths from root. Relative ledger and bolt paths in
// cfg are taken relative to root.
func NewPaths(root string, cfg *Config) Paths {
	data := filepath.Join(root, "data")
	return Paths{
		Root:             root,
		Queue:            filepath.Join(data, "claude_task_queue.json"),
		Archive:          filepath.Join(data, "task_archive.json"),
		ThreadLog:        filepath.Join(data, "thread_log.json"),
		WorkingMemory:    filepath.Join(data, "working_memory.json"),
		LogArchive:       filepath.Join(data, "thread_log_archive.json"),
		ExecutionLog:     filepath.Join(data, "execution_log.json"),
		ExecutionArchive: filepath.Join(data, "execution_archive"),
		TelemetrySlot:    filepath.Join(data, "last_execution_telemetry.json"),
		TelemetryDir:     filepath.Join(data, "telemetry"),
		Ledger:           underRoot(root, cfg.Telemetry.Ledger),
		Marker:           filepath.Join(data, "execute_queue.lock"),
		Bolt:             underRoot(root, cfg.Store.BoltPath),
	}
}

func underRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
