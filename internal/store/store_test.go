package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/orchestrate/jarvis/internal/tasks"
)

func TestJSONFileMissingReadsDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "thread_log.json")

	f := NewJSONFile(path, NewThreadLogDoc, time.Second)
	doc, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.Entries == nil || len(doc.Entries) != 0 {
		t.Errorf("Expected empty entries, got %v", doc.Entries)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected Read not to create the file")
	}
}

func TestJSONFileViewMissingTouchesNothing(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "data")
	path := filepath.Join(dir, "claude_task_queue.json")

	f := NewJSONFile(path, NewQueueDoc, time.Second)
	err := f.View(context.Background(), func(doc QueueDoc) error {
		if doc.Tasks == nil || len(doc.Tasks) != 0 {
			t.Errorf("Expected an empty default queue, got %v", doc.Tasks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected View not to create the data directory or lock file")
	}
}

func TestEmptyQueueRefusesWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var q QueueStore = EmptyQueue{}
	if err := q.View(ctx, func(active map[string]tasks.Task) error {
		if len(active) != 0 {
			t.Errorf("Expected no tasks, got %d", len(active))
		}
		return nil
	}); err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if err := q.Update(ctx, func(map[string]tasks.Task) error { return nil }); err == nil {
		t.Error("Expected Update to fail")
	}
}

func TestJSONFileUpdatePersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")
	ctx := context.Background()

	f := NewJSONFile(path, NewQueueDoc, time.Second)
	err := f.Update(ctx, func(doc *QueueDoc) error {
		doc.Tasks["a_0123456789ab"] = tasks.Task{ID: "a_0123456789ab", Status: tasks.StatusQueued}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reopened := NewJSONFile(path, NewQueueDoc, time.Second)
	doc, err := reopened.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := doc.Tasks["a_0123456789ab"].Status; got != tasks.StatusQueued {
		t.Errorf("Expected persisted queued task, got %q", got)
	}

	matches, _ := filepath.Glob(path + ".tmp-*")
	if len(matches) != 0 {
		t.Errorf("Expected no temp files left behind, got %v", matches)
	}
}

func TestJSONFileNoChangeSkipsWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")

	f := NewJSONFile(path, NewQueueDoc, time.Second)
	err := f.Update(context.Background(), func(doc *QueueDoc) error {
		doc.Tasks["x"] = tasks.Task{ID: "x"}
		return ErrNoChange
	})
	if err != nil {
		t.Fatalf("Expected nil for ErrNoChange, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file to be written")
	}
}

func TestJSONFileCallbackErrorAborts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")
	boom := errors.New("boom")

	f := NewJSONFile(path, NewQueueDoc, time.Second)
	err := f.Update(context.Background(), func(doc *QueueDoc) error {
		doc.Tasks["x"] = tasks.Task{ID: "x"}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file after a failed update")
	}
}

func TestJSONFileNullCollections(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "archive.json")
	if err := os.WriteFile(path, []byte(`{"archived_entries": null, "archived_logs": null}`), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := NewJSONFile(path, NewLogArchiveDoc, time.Second).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.ArchivedEntries == nil || doc.ArchivedLogs == nil {
		t.Error("Expected null collections to be replaced with empty ones")
	}
}

func TestJSONFileMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte(`{"tasks": [`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewJSONFile(path, NewQueueDoc, time.Second).Read(); err == nil {
		t.Error("Expected parse error for malformed store")
	}
}

func TestJSONFileConcurrentUpdates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.json")
	f := NewJSONFile(path, NewExecutionLogDoc, 5*time.Second)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.Update(context.Background(), func(doc *ExecutionLogDoc) error {
				doc.Executions = append(doc.Executions, Entry{"tool": "test"})
				return nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(doc.Executions) != writers {
		t.Errorf("Expected %d entries, got %d", writers, len(doc.Executions))
	}
}

func TestJSONFileLockTimeout(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")

	other := flock.New(path + ".lock")
	if err := other.Lock(); err != nil {
		t.Fatalf("Failed to take competing lock: %v", err)
	}
	defer other.Unlock()

	f := NewJSONFile(path, NewQueueDoc, 100*time.Millisecond)
	err := f.Update(context.Background(), func(*QueueDoc) error { return nil })
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout, got %v", err)
	}
}

func TestWorkingMemoryAcceptsBareArray(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "working_memory.json")
	if err := os.WriteFile(path, []byte(`[{"task_id":"a","timestamp":"2025-01-01T00:00:00"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := NewJSONFile(path, NewWorkingMemoryDoc, time.Second).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(doc.ThreadLogs) != 1 || doc.ThreadLogs[0].Timestamp() != "2025-01-01T00:00:00" {
		t.Errorf("Unexpected thread logs %v", doc.ThreadLogs)
	}
}

func TestMarkerLifecycle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "execute_queue.lock")

	m, err := ReadMarker(path)
	if err != nil || m != nil {
		t.Fatalf("Expected no marker, got %v, %v", m, err)
	}

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := WriteMarker(path, Marker{PID: 42, CreatedAt: tasks.Stamp(created), TaskID: "t"}); err != nil {
		t.Fatalf("WriteMarker failed: %v", err)
	}

	m, err = ReadMarker(path)
	if err != nil || m == nil {
		t.Fatalf("ReadMarker failed: %v", err)
	}
	if m.PID != 42 || m.TaskID != "t" {
		t.Errorf("Unexpected marker %+v", m)
	}
	if age := m.Age(created.Add(31 * time.Minute)); age != 31*time.Minute {
		t.Errorf("Expected 31m age, got %s", age)
	}

	if err := RemoveMarker(path); err != nil {
		t.Fatalf("RemoveMarker failed: %v", err)
	}
	if err := RemoveMarker(path); err != nil {
		t.Errorf("Expected removing a missing marker to succeed, got %v", err)
	}
}
