// Package testutil provides reusable test utilities for orchestrate tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// TestEnv is an isolated orchestrate root
type TestEnv struct {
	Root    string // installation root
	DataDir string // <root>/data
	t       *testing.T
}

// SetupTestEnv creates an isolated root with a data directory and points
// ORCHESTRATE_ROOT at it. Uses t.TempDir() and t.Setenv() for automatic
// cleanup, so tests using it must not call t.Parallel().
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("Failed to create data dir: %v", err)
	}

	t.Setenv("ORCHESTRATE_ROOT", root)

	return &TestEnv{Root: root, DataDir: dataDir, t: t}
}

// NewRoot creates an isolated root without touching the environment, for
// parallel tests.
func NewRoot(t *testing.T) *TestEnv {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("Failed to create data dir: %v", err)
	}
	return &TestEnv{Root: root, DataDir: dataDir, t: t}
}

// Path resolves a root-relative path.
func (e *TestEnv) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(e.Root, rel)
}

// CreateFile creates a file with the given content, relative to the root
// unless path is absolute.
func (e *TestEnv) CreateFile(path, content string) {
	e.t.Helper()

	fullPath := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		e.t.Fatalf("Failed to create directory for %s: %v", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		e.t.Fatalf("Failed to write file %s: %v", fullPath, err)
	}
}

// WriteJSON marshals v into path with two-space indentation.
func (e *TestEnv) WriteJSON(path string, v any) {
	e.t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		e.t.Fatalf("Failed to marshal %s: %v", path, err)
	}
	e.CreateFile(path, string(data))
}

// ReadFile reads a file from the test environment.
func (e *TestEnv) ReadFile(path string) string {
	e.t.Helper()

	data, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// ReadJSON decodes path into v.
func (e *TestEnv) ReadJSON(path string, v any) {
	e.t.Helper()

	if err := json.Unmarshal([]byte(e.ReadFile(path)), v); err != nil {
		e.t.Fatalf("Failed to decode %s: %v", path, err)
	}
}

// FileExists checks if a file exists in the test environment.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()

	_, err := os.Stat(e.Path(path))
	return err == nil
}

// Clock is a settable time source for code that takes a func() time.Time
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
