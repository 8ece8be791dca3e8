package queue

import (
	"context"
	"time"

	"github.com/orchestrate/jarvis/internal/notify"
	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
	"github.com/orchestrate/jarvis/internal/telemetry"
)

const (
	memoryDescriptionMax = 100
	memorySummaryMax     = 200
)

// Completion carries the executor's report for one task
type Completion struct {
	// Outcome is done or error
	Outcome              tasks.Status
	OutputSummary        string
	Errors               string
	ExecutionTimeSeconds float64
	// Telemetry, when nil, is aggregated from TranscriptPath or else taken
	// from the side channel
	Telemetry      *tasks.Telemetry
	TranscriptPath string
}

// CompleteResult describes a finished task
type CompleteResult struct {
	Task            tasks.Task `json:"task"`
	TelemetryMerged bool       `json:"telemetry_merged"`
	// TelemetrySource is "explicit", "transcript", "side_channel" or ""
	TelemetrySource string `json:"telemetry_source,omitempty"`
}

// Complete moves an in-progress task to done or error. It stamps the
// completion time and execution time, assigns the position within its
// batch and attaches telemetry. Afterwards it appends a working-memory log
// entry, records a ledger row, and removes the advisory marker once no task
// is in progress.
func (m *Manager) Complete(ctx context.Context, id string, c Completion) (*CompleteResult, error) {
	if c.Outcome != tasks.StatusDone && c.Outcome != tasks.StatusError {
		return nil, tasks.Malformed("completion status must be %q or %q, got %q", tasks.StatusDone, tasks.StatusError, c.Outcome)
	}
	if c.ExecutionTimeSeconds < 0 {
		return nil, tasks.Malformed("execution_time_seconds must not be negative")
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return nil, err
		}
	}

	explicit, source := c.Telemetry, "explicit"
	if explicit == nil && c.TranscriptPath != "" {
		usage, err := telemetry.AggregateFile(c.TranscriptPath)
		if err != nil {
			m.log.Printf("warning: transcript for %s not aggregated: %v", id, err)
		} else if !usage.IsZero() {
			explicit, source = &usage, "transcript"
		}
	}

	now := m.now()
	result := &CompleteResult{}
	var idle bool

	err := m.queue.Update(ctx, func(active map[string]tasks.Task) error {
		task, ok := active[id]
		if !ok {
			return tasks.NotFound(id)
		}
		if !tasks.CanTransition(task.Status, c.Outcome) {
			return tasks.InvalidState(id, "complete", task.Status)
		}

		task.Status = c.Outcome
		task.CompletedAt = tasks.Stamp(now)
		task.ExecutionTimeSeconds = executionTime(task, c.ExecutionTimeSeconds, now)
		task.OutputSummary = c.OutputSummary
		if task.OutputSummary == "" {
			task.OutputSummary = defaultSummary(c.Outcome)
		}
		task.Errors = c.Errors

		if task.BatchID != "" {
			archived, err := m.archivedTasks(ctx)
			if err != nil {
				return err
			}
			task.BatchPosition = completedInBatch(task.BatchID, id, active, archived) + 1
		}

		switch {
		case explicit != nil:
			t := *explicit
			t.Recompute()
			task.Telemetry = &t
			result.TelemetrySource = source
			if m.side != nil {
				if err := m.side.Discard(id); err != nil {
					m.log.Printf("warning: %v", err)
				}
			}
		case m.side != nil:
			t, err := m.side.Consume(id)
			if err != nil {
				m.log.Printf("warning: telemetry for %s not merged: %v", id, err)
			} else if t != nil {
				task.Telemetry = t
				result.TelemetrySource = "side_channel"
			}
		}
		result.TelemetryMerged = task.Telemetry != nil

		active[id] = task
		result.Task = task
		idle = !anyInProgress(active)
		return nil
	})
	if err != nil {
		return nil, storeError(err, "complete")
	}

	if idle {
		m.clearMarker()
	}
	m.appendMemory(ctx, result.Task, now)
	m.record(ctx, result.Task, now)
	m.publish(ctx, notify.Event{Action: "complete", TaskID: id, BatchID: result.Task.BatchID, Status: string(c.Outcome)})

	return result, nil
}

// executionTime prefers the reported duration and otherwise measures from
// the start, or from creation for tasks that were never stamped as started.
func executionTime(task tasks.Task, reported float64, now time.Time) float64 {
	if reported > 0 {
		return reported
	}
	from := task.StartedAt
	if from == nil {
		from = task.CreatedAt
	}
	if from == nil {
		return 0
	}
	if d := now.Sub(from.Time).Seconds(); d > 0 {
		return d
	}
	return 0
}

// completedInBatch counts finished (done or error) members of batchID other
// than self across the queue and the archive.
func completedInBatch(batchID, self string, active, archived map[string]tasks.Task) int {
	seen := map[string]bool{}
	for _, m := range []map[string]tasks.Task{active, archived} {
		for id, t := range m {
			if id == self || seen[id] || t.BatchID != batchID {
				continue
			}
			if t.Status == tasks.StatusDone || t.Status == tasks.StatusError {
				seen[id] = true
			}
		}
	}
	return len(seen)
}

func defaultSummary(outcome tasks.Status) string {
	if outcome == tasks.StatusDone {
		return "Task completed"
	}
	return "Task failed"
}

// appendMemory adds a compact log entry to working memory. Entries leave
// working memory only through age-based archival.
func (m *Manager) appendMemory(ctx context.Context, task tasks.Task, now time.Time) {
	if m.memory == nil {
		return
	}

	entry := store.Entry{
		"task_id":        task.ID,
		"description":    task.Summary(memoryDescriptionMax),
		"status":         string(task.Status),
		"output_summary": tasks.Truncate(task.OutputSummary, memorySummaryMax),
		"timestamp":      now.Format(time.RFC3339Nano),
	}
	if task.BatchID != "" {
		entry["batch_id"] = task.BatchID
	}

	err := m.memory.Update(ctx, func(doc *store.WorkingMemoryDoc) error {
		doc.ThreadLogs = append(doc.ThreadLogs, entry)
		return nil
	})
	if err != nil {
		m.log.Printf("warning: failed to update working memory for %s: %v", task.ID, err)
	}
}

func (m *Manager) record(ctx context.Context, task tasks.Task, now time.Time) {
	if m.ledger == nil || task.Telemetry == nil {
		return
	}

	rec := telemetry.Record{
		TaskID:          task.ID,
		BatchID:         task.BatchID,
		BatchPosition:   task.BatchPosition,
		Status:          task.Status,
		Telemetry:       *task.Telemetry,
		DurationSeconds: task.ExecutionTimeSeconds,
		RecordedAt:      now,
	}
	if err := m.ledger.Record(ctx, rec); err != nil {
		m.log.Printf("warning: %v", err)
	}
}
