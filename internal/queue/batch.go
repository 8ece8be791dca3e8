package queue

import (
	"context"
	"strings"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// BatchItem is one task of a batch request. TaskID may be empty, in which
// case it is derived from the description.
type BatchItem struct {
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description"`
}

// BatchResult reports a batch enqueue
type BatchResult struct {
	BatchID      string          `json:"batch_id"`
	SuccessCount int             `json:"success_count"`
	NoopCount    int             `json:"noop_count"`
	Total        int             `json:"total"`
	Results      []EnqueueResult `json:"results"`
}

// EnqueueBatch enqueues items under one freshly generated batch id, in one
// exclusive scope. Any item whose id is not well formed or does not match
// its description rejects the whole batch.
func (m *Manager) EnqueueBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, tasks.Malformed("batch contains no tasks")
	}

	batch := make([]tasks.Task, 0, len(items))
	var invalid []string
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, tasks.Malformed("batch item %d has an empty description", i)
		}
		task := tasks.New(item.Description)
		if item.TaskID != "" {
			if !tasks.ValidID(item.TaskID) || item.TaskID != task.ID {
				invalid = append(invalid, item.TaskID)
				continue
			}
		}
		batch = append(batch, task)
	}
	if len(invalid) > 0 {
		return nil, tasks.Malformed("invalid task ids in batch: %s", strings.Join(invalid, ", "))
	}

	batchID := m.newBatchID()
	results, err := m.enqueueAll(ctx, batch, batchID)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{BatchID: batchID, Total: len(results), Results: results}
	for _, r := range results {
		if r.Outcome == OutcomeSuccess {
			res.SuccessCount++
		} else {
			res.NoopCount++
		}
	}
	m.log.Printf("batch %s: %d enqueued, %d skipped", batchID, res.SuccessCount, res.NoopCount)
	return res, nil
}

// EnqueueDocument parses a markdown plan into tasks and enqueues them as one
// batch.
func (m *Manager) EnqueueDocument(ctx context.Context, text string) (*BatchResult, error) {
	parsed := tasks.ParseDocument(text)
	if len(parsed) == 0 {
		return nil, tasks.Malformed("document contains no tasks")
	}

	items := make([]BatchItem, len(parsed))
	for i, t := range parsed {
		items[i] = BatchItem{TaskID: t.ID, Description: t.Description}
	}
	return m.EnqueueBatch(ctx, items)
}
