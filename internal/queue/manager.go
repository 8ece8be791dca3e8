// Package queue owns the active task store and moves tasks through their
// lifecycle. Every mutating operation is one exclusive read-modify-write of
// the queue store; when the archive is consulted it is locked after the
// queue.
package queue

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrate/jarvis/internal/notify"
	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
	"github.com/orchestrate/jarvis/internal/telemetry"
)

// Recorder receives one ledger row per completion that carried telemetry
type Recorder interface {
	Record(ctx context.Context, r telemetry.Record) error
}

// Options wires a Manager to its stores and collaborators. Queue, Archive
// and WorkingMemory are required; the rest fall back to inert defaults.
type Options struct {
	Queue         store.QueueStore
	Archive       *store.JSONFile[store.TaskArchiveDoc]
	WorkingMemory *store.JSONFile[store.WorkingMemoryDoc]
	MarkerPath    string
	SideChannel   *telemetry.SideChannel
	Ledger        Recorder
	Notifier      notify.Notifier
	Logger        *log.Logger

	Now        func() time.Time
	NewBatchID func() string
	PID        int
}

// Manager implements the queue operations
type Manager struct {
	queue      store.QueueStore
	archive    *store.JSONFile[store.TaskArchiveDoc]
	memory     *store.JSONFile[store.WorkingMemoryDoc]
	markerPath string
	side       *telemetry.SideChannel
	ledger     Recorder
	notifier   notify.Notifier
	log        *log.Logger
	now        func() time.Time
	newBatchID func() string
	pid        int
}

// New creates a Manager from opts
func New(opts Options) *Manager {
	m := &Manager{
		queue:      opts.Queue,
		archive:    opts.Archive,
		memory:     opts.WorkingMemory,
		markerPath: opts.MarkerPath,
		side:       opts.SideChannel,
		ledger:     opts.Ledger,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		now:        opts.Now,
		newBatchID: opts.NewBatchID,
		pid:        opts.PID,
	}
	if m.notifier == nil {
		m.notifier = notify.Nop{}
	}
	if m.log == nil {
		m.log = log.New(os.Stderr, "queue: ", log.LstdFlags)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newBatchID == nil {
		m.newBatchID = func() string { return uuid.New().String() }
	}
	if m.pid == 0 {
		m.pid = os.Getpid()
	}
	return m
}

// Outcome values reported for enqueue-style operations
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
)

// EnqueueResult reports what happened to one task
type EnqueueResult struct {
	Outcome string `json:"status"`
	TaskID  string `json:"task_id"`
	Reason  string `json:"message,omitempty"`
}

// Enqueue inserts task as queued unless its id already exists in the queue
// or the archive, in which case the result is a no-op.
func (m *Manager) Enqueue(ctx context.Context, task tasks.Task) (EnqueueResult, error) {
	if err := prepare(&task); err != nil {
		return EnqueueResult{}, err
	}

	results, err := m.enqueueAll(ctx, []tasks.Task{task}, "")
	if err != nil {
		return EnqueueResult{}, err
	}
	return results[0], nil
}

// enqueueAll inserts every task in one exclusive scope. batchID, when set,
// is stamped on the tasks that are inserted.
func (m *Manager) enqueueAll(ctx context.Context, batch []tasks.Task, batchID string) ([]EnqueueResult, error) {
	results := make([]EnqueueResult, len(batch))
	now := m.now()

	err := m.queue.Update(ctx, func(active map[string]tasks.Task) error {
		archived, err := m.archivedTasks(ctx)
		if err != nil {
			return err
		}

		inserted := 0
		for i, task := range batch {
			switch {
			case exists(active, task.ID):
				results[i] = EnqueueResult{Outcome: OutcomeNoop, TaskID: task.ID, Reason: "already in queue with status " + string(active[task.ID].Status)}
			case exists(archived, task.ID):
				results[i] = EnqueueResult{Outcome: OutcomeNoop, TaskID: task.ID, Reason: "already archived with status " + string(archived[task.ID].Status)}
			default:
				task.Status = tasks.StatusQueued
				task.BatchID = batchID
				task.CreatedAt = tasks.Stamp(now)
				active[task.ID] = task
				inserted++
				results[i] = EnqueueResult{Outcome: OutcomeSuccess, TaskID: task.ID}
			}
		}

		if inserted == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "enqueue")
	}

	for _, r := range results {
		if r.Outcome == OutcomeSuccess {
			m.publish(ctx, notify.Event{Action: "enqueue", TaskID: r.TaskID, BatchID: batchID, Status: string(tasks.StatusQueued)})
		}
	}
	return results, nil
}

// Claim moves a queued task to in_progress and writes the advisory marker.
// Claiming a task that is already in progress fails, so at most one caller
// wins.
func (m *Manager) Claim(ctx context.Context, id string) (*tasks.Task, error) {
	now := m.now()
	var claimed tasks.Task

	err := m.queue.Update(ctx, func(active map[string]tasks.Task) error {
		task, ok := active[id]
		if !ok {
			return tasks.NotFound(id)
		}
		if !tasks.CanTransition(task.Status, tasks.StatusInProgress) {
			return tasks.InvalidState(id, "claim", task.Status)
		}

		task.Status = tasks.StatusInProgress
		task.StartedAt = tasks.Stamp(now)
		active[id] = task
		claimed = task
		return nil
	})
	if err != nil {
		return nil, storeError(err, "claim")
	}

	if m.markerPath != "" {
		marker := store.Marker{PID: m.pid, CreatedAt: tasks.Stamp(now), TaskID: id}
		if err := store.WriteMarker(m.markerPath, marker); err != nil {
			m.log.Printf("warning: failed to write marker for %s: %v", id, err)
		}
	}

	m.publish(ctx, notify.Event{Action: "claim", TaskID: id, BatchID: claimed.BatchID, Status: string(tasks.StatusInProgress)})
	return &claimed, nil
}

// Cancel moves a queued or in-progress task to cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) (*tasks.Task, tasks.Status, error) {
	var (
		cancelled tasks.Task
		previous  tasks.Status
		idle      bool
	)

	err := m.queue.Update(ctx, func(active map[string]tasks.Task) error {
		task, ok := active[id]
		if !ok {
			return tasks.NotFound(id)
		}
		if !tasks.CanTransition(task.Status, tasks.StatusCancelled) {
			return tasks.InvalidState(id, "cancel", task.Status)
		}

		previous = task.Status
		task.Status = tasks.StatusCancelled
		task.CancelledAt = tasks.Stamp(m.now())
		active[id] = task
		cancelled = task
		idle = !anyInProgress(active)
		return nil
	})
	if err != nil {
		return nil, "", storeError(err, "cancel")
	}

	if idle {
		m.clearMarker()
	}
	m.publish(ctx, notify.Event{Action: "cancel", TaskID: id, BatchID: cancelled.BatchID, Status: string(tasks.StatusCancelled)})
	return &cancelled, previous, nil
}

// Reset returns an in-progress task to queued, for claims whose executor
// died. The start time is cleared.
func (m *Manager) Reset(ctx context.Context, id string) (*tasks.Task, error) {
	var (
		reset tasks.Task
		idle  bool
	)

	err := m.queue.Update(ctx, func(active map[string]tasks.Task) error {
		task, ok := active[id]
		if !ok {
			return tasks.NotFound(id)
		}
		if task.Status != tasks.StatusInProgress {
			return tasks.InvalidState(id, "reset", task.Status)
		}

		task.Status = tasks.StatusQueued
		task.StartedAt = nil
		task.ResetAt = tasks.Stamp(m.now())
		active[id] = task
		reset = task
		idle = !anyInProgress(active)
		return nil
	})
	if err != nil {
		return nil, storeError(err, "reset")
	}

	if idle {
		m.clearMarker()
	}
	m.publish(ctx, notify.Event{Action: "reset", TaskID: id, BatchID: reset.BatchID, Status: string(tasks.StatusQueued)})
	return &reset, nil
}

// archivedTasks reads the archive under its shared lock. Callers hold the
// queue lock, which keeps the queue-then-archive order.
func (m *Manager) archivedTasks(ctx context.Context) (map[string]tasks.Task, error) {
	var archived map[string]tasks.Task
	err := m.archive.View(ctx, func(doc store.TaskArchiveDoc) error {
		archived = doc.ArchivedTasks
		return nil
	})
	return archived, err
}

func (m *Manager) clearMarker() {
	if m.markerPath == "" {
		return
	}
	if err := store.RemoveMarker(m.markerPath); err != nil {
		m.log.Printf("warning: %v", err)
	}
}

func (m *Manager) publish(ctx context.Context, ev notify.Event) {
	ev.Timestamp = m.now()
	if err := m.notifier.Publish(ctx, ev); err != nil {
		m.log.Printf("warning: notification dropped: %v", err)
	}
}

// prepare validates a task for insertion and derives its identity when the
// caller left it empty.
func prepare(task *tasks.Task) error {
	if task.Description == "" {
		return tasks.Malformed("task description is empty")
	}
	derived := tasks.New(task.Description)
	if task.ID == "" {
		task.ID = derived.ID
	}
	if task.ID != derived.ID {
		return tasks.Malformed("task_id %q does not match its description (want %q)", task.ID, derived.ID)
	}
	if task.Context.DocID == "" {
		task.Context = derived.Context
	}
	return nil
}

func exists(m map[string]tasks.Task, id string) bool {
	_, ok := m[id]
	return ok
}

func anyInProgress(active map[string]tasks.Task) bool {
	for _, t := range active {
		if t.Status == tasks.StatusInProgress {
			return true
		}
	}
	return false
}

// storeError passes lifecycle errors through and classifies everything
// else as a store I/O failure.
func storeError(err error, op string) error {
	var te *tasks.Error
	if errors.As(err, &te) {
		return err
	}
	return tasks.IOFailure(err, "%s", op)
}
