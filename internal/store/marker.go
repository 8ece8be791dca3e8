package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// Marker is the advisory lock file written while a task is in progress.
// Its presence is informational; nothing enforces it.
type Marker struct {
	PID       int              `json:"pid"`
	CreatedAt *tasks.Timestamp `json:"created_at"`
	TaskID    string           `json:"task_id"`
}

// Age returns how long ago the marker was created, or zero when unknown.
func (m *Marker) Age(now time.Time) time.Duration {
	if m == nil || m.CreatedAt == nil {
		return 0
	}
	return now.Sub(m.CreatedAt.Time)
}

// WriteMarker atomically writes the marker file
func WriteMarker(path string, m Marker) error {
	return WriteJSON(path, m)
}

// ReadMarker returns nil, nil when no marker exists.
func ReadMarker(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse marker %s: %w", path, err)
	}
	return &m, nil
}

// RemoveMarker deletes the marker; a missing marker is not an error.
func RemoveMarker(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	return nil
}
