package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// PreToolUse is the only hook event a capture runs on. It fires before the
// completion command executes, so the snapshot is in place when Complete
// consumes it.
const PreToolUse = "PreToolUse"

// HookInput is the PreToolUse payload Claude Code writes to a hook's stdin
type HookInput struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	Cwd            string          `json:"cwd"`
	HookEventName  string          `json:"hook_event_name"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
}

// Command returns tool_input.command, or "" when the tool input has none.
func (in HookInput) Command() string {
	var ti struct {
		Command string `json:"command"`
	}
	if len(in.ToolInput) == 0 || json.Unmarshal(in.ToolInput, &ti) != nil {
		return ""
	}
	return ti.Command
}

// Capture is the outcome of one hook invocation
type Capture struct {
	Captured  bool            `json:"captured"`
	Reason    string          `json:"reason,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Path      string          `json:"path,omitempty"`
	Telemetry tasks.Telemetry `json:"telemetry"`
}

// HandleHook captures transcript usage into the side channel when the event
// is a Bash call whose command contains sentinel. Events that do not qualify
// return Captured=false with a reason and no error. An empty event name is
// treated as PreToolUse; any other event is skipped, since a snapshot
// written after the completion has run would never be consumed.
func HandleHook(in HookInput, sentinel string, ch *SideChannel) (Capture, error) {
	if in.HookEventName != "" && in.HookEventName != PreToolUse {
		return Capture{Reason: in.HookEventName + " fires after the completion; register the hook as PreToolUse"}, nil
	}
	if in.ToolName != "Bash" {
		return Capture{Reason: "not a Bash tool call"}, nil
	}
	command := in.Command()
	if sentinel == "" || !strings.Contains(command, sentinel) {
		return Capture{Reason: "command is not a completion"}, nil
	}
	if in.TranscriptPath == "" {
		return Capture{Reason: "no transcript path"}, nil
	}

	usage, err := AggregateFile(in.TranscriptPath)
	if err != nil {
		return Capture{}, err
	}
	if usage.IsZero() {
		return Capture{Reason: "transcript has no usage"}, nil
	}

	taskID := ExtractTaskID(command)
	path, err := ch.Write(taskID, usage)
	if err != nil {
		return Capture{}, fmt.Errorf("capture for %q: %w", taskID, err)
	}

	return Capture{Captured: true, TaskID: taskID, Path: path, Telemetry: usage}, nil
}

// ExtractTaskID reads "task_id" from the JSON object spanning the first '{'
// and the last '}' of a command line, as passed with --params. It returns ""
// when there is no such object or it has no string task_id.
func ExtractTaskID(command string) string {
	start := strings.IndexByte(command, '{')
	end := strings.LastIndexByte(command, '}')
	if start < 0 || end <= start {
		return ""
	}

	var params struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal([]byte(command[start:end+1]), &params); err != nil {
		return ""
	}
	return params.TaskID
}
