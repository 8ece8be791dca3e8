// Package guard decides whether an editing tool may write a file directly.
// Stores in the protected set may only change through the orchestrate
// actions; the decision is advisory and enforced by whoever asks.
package guard

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ProtectedFiles are root-relative, slash-separated store paths
var ProtectedFiles = []string{
	"data/outline_queue.json",
	"data/claude_task_queue.json",
	"data/claude_task_results.json",
	"data/automation_state.json",
	"data/execution_log.json",
	"data/outline_reference.json",
	"data/youtube_published.json",
	"data/youtube_publish_queue.json",
	"data/podcast_index.json",
	"data/working_memory.json",
}

var writeTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
}

// Decision is the gate's answer for one tool call
type Decision struct {
	Allowed bool   `json:"allowed"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// Gate checks tool calls against the protected set of one installation
type Gate struct {
	root      string
	protected map[string]bool
}

// New creates a gate for the installation at root
func New(root string) *Gate {
	g := &Gate{root: root, protected: map[string]bool{}}
	for _, p := range ProtectedFiles {
		g.protected[p] = true
	}
	return g
}

// Check denies Write, Edit and MultiEdit on a protected path and allows
// everything else.
func (g *Gate) Check(tool, path string) Decision {
	if !writeTools[tool] || strings.TrimSpace(path) == "" {
		return Decision{Allowed: true}
	}

	rel, ok := g.normalize(path)
	if !ok || !g.protected[rel] {
		return Decision{Allowed: true, Path: rel}
	}

	return Decision{
		Allowed: false,
		Path:    rel,
		Message: denial(tool, rel),
	}
}

// normalize maps path to a clean slash-separated path relative to the root.
// Paths outside the root report false.
func (g *Gate) normalize(path string) (string, bool) {
	p := filepath.Clean(path)
	if filepath.IsAbs(p) {
		if g.root == "" {
			return filepath.ToSlash(p), false
		}
		rel, err := filepath.Rel(filepath.Clean(g.root), p)
		if err != nil {
			return filepath.ToSlash(p), false
		}
		p = rel
	}
	p = filepath.ToSlash(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return p, false
	}
	return p, true
}

func denial(tool, rel string) string {
	list := append([]string(nil), ProtectedFiles...)
	sort.Strings(list)

	var b strings.Builder
	fmt.Fprintf(&b, "BLOCKED: %s on protected store %s.\n", tool, rel)
	b.WriteString("Protected stores change only through orchestrate actions ")
	b.WriteString("(enqueue, claim, complete, cancel, reset, archive_*), which lock and write them atomically.\n")
	b.WriteString("Protected files:\n")
	for _, p := range list {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	return b.String()
}
