package store

import (
	"context"
	"errors"
	"time"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// QueueStore holds the active (non-archived) tasks keyed by task_id.
// Update runs fn inside one exclusive scope; changes fn makes to the map are
// persisted when it returns nil. fn may return ErrNoChange to skip the write.
type QueueStore interface {
	View(ctx context.Context, fn func(map[string]tasks.Task) error) error
	Update(ctx context.Context, fn func(map[string]tasks.Task) error) error
	Close() error
}

// JSONQueue stores the queue in data/claude_task_queue.json
type JSONQueue struct {
	file *JSONFile[QueueDoc]
}

var _ QueueStore = (*JSONQueue)(nil)

// NewJSONQueue opens the JSON queue at path
func NewJSONQueue(path string, lockTimeout time.Duration) *JSONQueue {
	return &JSONQueue{file: NewJSONFile(path, NewQueueDoc, lockTimeout)}
}

func (q *JSONQueue) View(ctx context.Context, fn func(map[string]tasks.Task) error) error {
	return q.file.View(ctx, func(doc QueueDoc) error {
		return fn(doc.Tasks)
	})
}

func (q *JSONQueue) Update(ctx context.Context, fn func(map[string]tasks.Task) error) error {
	return q.file.Update(ctx, func(doc *QueueDoc) error {
		return fn(doc.Tasks)
	})
}

// Close is a no-op; locks are released after every operation.
func (q *JSONQueue) Close() error {
	return nil
}

// EmptyQueue is a queue with no tasks that refuses writes. It stands in for
// a backend whose database does not exist yet when only reading.
type EmptyQueue struct{}

var _ QueueStore = EmptyQueue{}

func (EmptyQueue) View(_ context.Context, fn func(map[string]tasks.Task) error) error {
	return fn(map[string]tasks.Task{})
}

func (EmptyQueue) Update(context.Context, func(map[string]tasks.Task) error) error {
	return errors.New("queue store is not initialised")
}

func (EmptyQueue) Close() error { return nil }
