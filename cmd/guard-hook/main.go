// guard-hook is a PreToolUse hook that denies direct edits to the
// orchestrate data files; changes go through orchestrate actions instead.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/orchestrate/jarvis/internal/config"
	"github.com/orchestrate/jarvis/internal/guard"
)

type hookInput struct {
	Cwd       string `json:"cwd"`
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		FilePath string `json:"file_path"`
	} `json:"tool_input"`
}

type hookOutput struct {
	HookSpecificOutput struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason"`
	} `json:"hookSpecificOutput"`
}

func main() {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "guard-hook: %v\n", err)
		os.Exit(0)
	}

	var in hookInput
	if err := json.Unmarshal(input, &in); err != nil {
		fmt.Fprintf(os.Stderr, "guard-hook: invalid input: %v\n", err)
		os.Exit(0)
	}

	root := in.Cwd
	if env := os.Getenv(config.EnvRoot); env != "" {
		root = env
	}
	root, err = config.ResolveRoot(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "guard-hook: %v\n", err)
		os.Exit(0)
	}

	d := guard.New(root).Check(in.ToolName, in.ToolInput.FilePath)
	if d.Allowed {
		os.Exit(0)
	}

	var out hookOutput
	out.HookSpecificOutput.HookEventName = "PreToolUse"
	out.HookSpecificOutput.PermissionDecision = "deny"
	out.HookSpecificOutput.PermissionDecisionReason = d.Message
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "guard-hook: %v\n", err)
	}
}
