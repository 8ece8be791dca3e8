// Package archive moves finished tasks and aged log entries out of the
// active stores. Archives are always written before the active store they
// were drained from, so an interrupted pass leaves a record in both places
// rather than in neither.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/orchestrate/jarvis/internal/notify"
	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

// DefaultLogRetentionDays is the age at which log entries are archived
const DefaultLogRetentionDays = 30

// Options wires an Archiver to its stores
type Options struct {
	Queue         store.QueueStore
	Archive       *store.JSONFile[store.TaskArchiveDoc]
	ThreadLog     *store.JSONFile[store.ThreadLogDoc]
	WorkingMemory *store.JSONFile[store.WorkingMemoryDoc]
	LogArchive    *store.JSONFile[store.LogArchiveDoc]

	ExecutionLog        *store.JSONFile[store.ExecutionLogDoc]
	ExecutionArchiveDir string

	// LogRetentionDays defaults to DefaultLogRetentionDays when zero
	LogRetentionDays int

	Notifier notify.Notifier
	Logger   *log.Logger
	Now      func() time.Time
}

// Archiver runs the retention passes
type Archiver struct {
	queue      store.QueueStore
	archive    *store.JSONFile[store.TaskArchiveDoc]
	threadLog  *store.JSONFile[store.ThreadLogDoc]
	memory     *store.JSONFile[store.WorkingMemoryDoc]
	logArchive *store.JSONFile[store.LogArchiveDoc]
	execLog    *store.JSONFile[store.ExecutionLogDoc]
	execDir    string
	retention  int
	notifier   notify.Notifier
	log        *log.Logger
	now        func() time.Time
}

// New creates an Archiver from opts
func New(opts Options) *Archiver {
	a := &Archiver{
		queue:      opts.Queue,
		archive:    opts.Archive,
		threadLog:  opts.ThreadLog,
		memory:     opts.WorkingMemory,
		logArchive: opts.LogArchive,
		execLog:    opts.ExecutionLog,
		execDir:    opts.ExecutionArchiveDir,
		retention:  opts.LogRetentionDays,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if a.retention == 0 {
		a.retention = DefaultLogRetentionDays
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.log == nil {
		a.log = log.New(os.Stderr, "archive: ", log.LstdFlags)
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// TaskResult reports a task archival pass
type TaskResult struct {
	ArchivedCount  int      `json:"archived_count"`
	ArchivedIDs    []string `json:"archived_ids,omitempty"`
	RemainingCount int      `json:"remaining_count"`
	TotalInArchive int      `json:"total_in_archive"`
}

// ArchiveTasks moves every done, error or cancelled task from the queue into
// the archive. An archived id that already exists is overwritten. A pass with
// nothing eligible writes neither store, so repeating it is a no-op.
func (a *Archiver) ArchiveTasks(ctx context.Context) (*TaskResult, error) {
	res := &TaskResult{}

	err := a.queue.Update(ctx, func(active map[string]tasks.Task) error {
		moved := map[string]tasks.Task{}
		for id, t := range active {
			if t.Status.IsTerminal() {
				moved[id] = t
			}
		}

		if len(moved) == 0 {
			res.RemainingCount = len(active)
			err := a.archive.View(ctx, func(doc store.TaskArchiveDoc) error {
				res.TotalInArchive = len(doc.ArchivedTasks)
				return nil
			})
			if err != nil {
				return err
			}
			return store.ErrNoChange
		}

		err := a.archive.Update(ctx, func(doc *store.TaskArchiveDoc) error {
			for id, t := range moved {
				doc.ArchivedTasks[id] = t
			}
			doc.TotalArchived = len(doc.ArchivedTasks)
			doc.LastArchived = tasks.Stamp(a.now())
			res.TotalInArchive = doc.TotalArchived
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write task archive: %w", err)
		}

		for id := range moved {
			delete(active, id)
			res.ArchivedIDs = append(res.ArchivedIDs, id)
		}
		res.ArchivedCount = len(moved)
		res.RemainingCount = len(active)
		return nil
	})
	if err != nil {
		return nil, ioError(err, "archive tasks")
	}

	if res.ArchivedCount > 0 {
		sort.Strings(res.ArchivedIDs)
		a.publish(ctx, notify.Event{Action: "archive_tasks", Count: res.ArchivedCount})
	}
	return res, nil
}

func (a *Archiver) publish(ctx context.Context, ev notify.Event) {
	ev.Timestamp = a.now()
	if err := a.notifier.Publish(ctx, ev); err != nil {
		a.log.Printf("warning: notification dropped: %v", err)
	}
}

func ioError(err error, op string) error {
	var te *tasks.Error
	if errors.As(err, &te) {
		return err
	}
	return tasks.IOFailure(err, "%s", op)
}
