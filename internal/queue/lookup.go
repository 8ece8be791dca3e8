package queue

import (
	"context"
	"sort"

	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit
const DefaultRecentLimit = 10

// Location says which store a task was found in
type Location string

const (
	InQueue   Location = "queue"
	InArchive Location = "archive"
)

// Lookup is a task together with where it lives
type Lookup struct {
	Task     tasks.Task `json:"task"`
	Location Location   `json:"location"`
}

// Get finds a task in the queue, then in the archive.
func (m *Manager) Get(ctx context.Context, id string) (*Lookup, error) {
	var found *Lookup
	err := m.queue.View(ctx, func(active map[string]tasks.Task) error {
		if t, ok := active[id]; ok {
			found = &Lookup{Task: t, Location: InQueue}
			return nil
		}
		archived, err := m.archivedTasks(ctx)
		if err != nil {
			return err
		}
		if t, ok := archived[id]; ok {
			found = &Lookup{Task: t, Location: InArchive}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "get")
	}
	if found == nil {
		return nil, tasks.NotFound(id)
	}
	return found, nil
}

// Recent returns up to limit finished tasks across the queue and the archive,
// newest completion first. Queue entries shadow archived ones with the same
// id.
func (m *Manager) Recent(ctx context.Context, limit int) ([]tasks.Task, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var finished []tasks.Task
	err := m.queue.View(ctx, func(active map[string]tasks.Task) error {
		archived, err := m.archivedTasks(ctx)
		if err != nil {
			return err
		}
		for id, t := range archived {
			if _, shadowed := active[id]; !shadowed && t.CompletedAt != nil {
				finished = append(finished, t)
			}
		}
		for _, t := range active {
			if t.CompletedAt != nil {
				finished = append(finished, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "recent")
	}

	sort.Slice(finished, func(i, j int) bool {
		a, b := finished[i].CompletedAt.Time, finished[j].CompletedAt.Time
		if a.Equal(b) {
			return finished[i].ID < finished[j].ID
		}
		return a.After(b)
	})
	if len(finished) > limit {
		finished = finished[:limit]
	}
	return finished, nil
}

// Counts tallies the active queue by status
type Counts struct {
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Error      int `json:"error"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
	Archived   int `json:"archived"`
}

// Counts returns the current queue tallies and the archive size.
func (m *Manager) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := m.queue.View(ctx, func(active map[string]tasks.Task) error {
		for _, t := range active {
			switch t.Status {
			case tasks.StatusQueued:
				c.Queued++
			case tasks.StatusInProgress:
				c.InProgress++
			case tasks.StatusDone:
				c.Done++
			case tasks.StatusError:
				c.Error++
			case tasks.StatusCancelled:
				c.Cancelled++
			}
		}
		c.Total = len(active)
		return m.archive.View(ctx, func(doc store.TaskArchiveDoc) error {
			c.Archived = len(doc.ArchivedTasks)
			return nil
		})
	})
	if err != nil {
		return nil, storeError(err, "counts")
	}
	return c, nil
}
