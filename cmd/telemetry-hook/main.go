// telemetry-hook is a PreToolUse hook on Bash that captures transcript token
// usage just before an executor runs the completion command, so the
// completion that follows finds it in the side channel.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/orchestrate/jarvis/internal/config"
	"github.com/orchestrate/jarvis/internal/telemetry"
)

func main() {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		// Silent failure - never block the tool call
		fmt.Fprintf(os.Stderr, "telemetry-hook: %v\n", err)
		os.Exit(0)
	}

	var in telemetry.HookInput
	if err := json.Unmarshal(input, &in); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-hook: invalid input: %v\n", err)
		os.Exit(0)
	}

	root := in.Cwd
	if env := os.Getenv(config.EnvRoot); env != "" {
		root = env
	}
	root, err = config.ResolveRoot(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-hook: %v\n", err)
		os.Exit(0)
	}

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-hook: %v\n", err)
		cfg = config.DefaultConfig()
	}
	paths := config.NewPaths(root, cfg)

	capture, err := telemetry.HandleHook(in, cfg.Telemetry.Sentinel, telemetry.NewSideChannel(paths.TelemetrySlot, paths.TelemetryDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-hook: %v\n", err)
		os.Exit(0)
	}
	if capture.Captured {
		fmt.Fprintf(os.Stderr, "telemetry-hook: captured %d input tokens for %q\n", capture.Telemetry.TotalInput, capture.TaskID)
	}

	fmt.Println("{}")
}
