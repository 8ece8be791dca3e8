package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

// SideChannel hands a telemetry snapshot from the capture hook to the
// completion that follows it.
//
// Snapshots for a known task go to <dir>/<task_id>.json and can only be
// consumed by that task. Without a task id the hook falls back to the single
// slot file, which the next completion consumes whatever task it is for; two
// completions racing on that slot can be misattributed.
type SideChannel struct {
	slot string
	dir  string
}

// NewSideChannel uses slot as the single slot file and dir for keyed slots
func NewSideChannel(slot, dir string) *SideChannel {
	return &SideChannel{slot: slot, dir: dir}
}

// Write stores a snapshot, keyed when taskID is a well-formed task id, and
// returns the file written.
func (s *SideChannel) Write(taskID string, t tasks.Telemetry) (string, error) {
	t.Recompute()

	path := s.slot
	if tasks.ValidID(taskID) {
		path = s.keyed(taskID)
	}
	if err := store.WriteJSON(path, t); err != nil {
		return "", fmt.Errorf("failed to write telemetry: %w", err)
	}
	return path, nil
}

// Consume returns and removes the snapshot for taskID, preferring its keyed
// slot over the single slot. It returns nil, nil when neither exists.
func (s *SideChannel) Consume(taskID string) (*tasks.Telemetry, error) {
	candidates := []string{s.slot}
	if tasks.ValidID(taskID) {
		candidates = []string{s.keyed(taskID), s.slot}
	}

	for _, path := range candidates {
		t, err := consumeFile(path)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// Discard removes the keyed snapshot for taskID, if any. The single slot is
// left for whichever completion comes next.
func (s *SideChannel) Discard(taskID string) error {
	if !tasks.ValidID(taskID) {
		return nil
	}
	if err := os.Remove(s.keyed(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard telemetry: %w", err)
	}
	return nil
}

func (s *SideChannel) keyed(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

func consumeFile(path string) (*tasks.Telemetry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}

	var t tasks.Telemetry
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse telemetry %s: %w", filepath.Base(path), err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("telemetry %s: %w", filepath.Base(path), err)
	}
	t.Recompute()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove consumed telemetry: %w", err)
	}
	return &t, nil
}
