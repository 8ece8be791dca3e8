package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

type fakeChecker map[string]bool

func (f fakeChecker) Running(_ context.Context, pattern string) (bool, error) {
	running, ok := f[pattern]
	if !ok {
		return false, errors.New("pgrep unavailable")
	}
	return running, nil
}

type fakeRecent []tasks.Task

func (f fakeRecent) Recent(_ context.Context, limit int) ([]tasks.Task, error) {
	if len(f) > limit {
		return f[:limit], nil
	}
	return f, nil
}

var now = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func seedQueue(t *testing.T, dir string, statuses ...tasks.Status) store.QueueStore {
	t.Helper()
	q := store.NewJSONQueue(filepath.Join(dir, "queue.json"), time.Second)
	err := q.Update(context.Background(), func(active map[string]tasks.Task) error {
		for i, s := range statuses {
			task := tasks.New("# Task " + string(rune('a'+i)))
			task.Status = s
			active[task.ID] = task
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestAuditStuckWithoutMarker(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q := seedQueue(t, dir, tasks.StatusQueued, tasks.StatusQueued, tasks.StatusInProgress)

	a := New(Options{
		Queue:      q,
		MarkerPath: filepath.Join(dir, "marker.json"),
		Processes:  []string{"claude"},
		Checker:    fakeChecker{"claude": true},
		Now:        func() time.Time { return now },
	})
	rep, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rep.Queued != 2 || rep.InProgress != 1 {
		t.Errorf("Unexpected counts %d queued, %d in progress", rep.Queued, rep.InProgress)
	}
	if len(rep.Stuck) != 1 || rep.Stuck[0] != tasks.GenerateID("# Task c") {
		t.Errorf("Expected the in-progress task flagged as stuck, got %v", rep.Stuck)
	}
	if rep.Healthy {
		t.Error("Expected unhealthy report")
	}
	if !rep.Processes["claude"] {
		t.Error("Expected claude reported running")
	}
}

func TestAuditStaleMarker(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q := seedQueue(t, dir, tasks.StatusInProgress)
	marker := filepath.Join(dir, "marker.json")

	if err := store.WriteMarker(marker, store.Marker{PID: 1, CreatedAt: tasks.Stamp(now.Add(-45 * time.Minute))}); err != nil {
		t.Fatal(err)
	}

	rep, err := New(Options{Queue: q, MarkerPath: marker, Now: func() time.Time { return now }}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.Stuck) != 0 {
		t.Errorf("Expected no stuck tasks while a marker exists, got %v", rep.Stuck)
	}
	if !rep.MarkerStale || rep.Healthy {
		t.Errorf("Expected stale marker, got %+v", rep)
	}
}

func TestAuditHealthy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q := seedQueue(t, dir, tasks.StatusQueued)

	tel := tasks.NewTelemetry(1, 1, 0, 0)
	recent := fakeRecent{
		{ID: "a_0123456789ab", Status: tasks.StatusDone, BatchID: "b1", Telemetry: &tel, CompletedAt: tasks.Stamp(now)},
		{ID: "b_0123456789ab", Status: tasks.StatusError, CompletedAt: tasks.Stamp(now.Add(-time.Hour))},
		{ID: "c_0123456789ab", Status: tasks.StatusDone, CompletedAt: tasks.Stamp(now.Add(-2 * time.Hour))},
		{ID: "d_0123456789ab", Status: tasks.StatusDone, CompletedAt: tasks.Stamp(now.Add(-3 * time.Hour))},
	}

	rep, err := New(Options{
		Queue:     q,
		Recent:    recent,
		Processes: []string{"claude"},
		Checker:   fakeChecker{"claude": true},
		Now:       func() time.Time { return now },
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rep.Healthy {
		t.Errorf("Expected healthy report, got %+v", rep.Checks)
	}
	if len(rep.Recent) != 3 || !rep.RecentTelemetry || !rep.RecentBatch {
		t.Errorf("Unexpected recency %+v", rep.Recent)
	}
	if rep.Recent[0].TokensInput == nil || *rep.Recent[0].TokensInput != 1 {
		t.Errorf("Expected token data on the newest task")
	}
}

func TestAuditProcessProbeFailure(t *testing.T) {
	t.Parallel()
	q := seedQueue(t, t.TempDir())

	rep, err := New(Options{Queue: q, Processes: []string{"engine"}, Checker: fakeChecker{}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Healthy || rep.Checks[0].OK || rep.Checks[0].Detail == "" {
		t.Errorf("Expected a failed check with detail, got %+v", rep.Checks)
	}
}

func TestAuditIsReadOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q := seedQueue(t, dir, tasks.StatusInProgress)
	path := filepath.Join(dir, "queue.json")

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Options{Queue: q, Now: func() time.Time { return now }}).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("Expected the audit to leave the queue untouched")
	}
}
