package store

import (
	"bytes"
	"encoding/json"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// Entry is an open log record. Only its "timestamp" member is interpreted.
type Entry map[string]any

// Timestamp returns the entry's timestamp string, or "" when absent or not
// a string.
func (e Entry) Timestamp() string {
	s, _ := e["timestamp"].(string)
	return s
}

// QueueDoc is the layout of data/claude_task_queue.json
type QueueDoc struct {
	Tasks map[string]tasks.Task `json:"tasks"`
}

// NewQueueDoc returns an empty queue
func NewQueueDoc() QueueDoc {
	return QueueDoc{Tasks: map[string]tasks.Task{}}
}

// TaskArchiveDoc is the layout of data/task_archive.json
type TaskArchiveDoc struct {
	ArchivedTasks map[string]tasks.Task `json:"archived_tasks"`
	LastArchived  *tasks.Timestamp      `json:"last_archived"`
	TotalArchived int                   `json:"total_archived"`
}

// NewTaskArchiveDoc returns an empty task archive
func NewTaskArchiveDoc() TaskArchiveDoc {
	return TaskArchiveDoc{ArchivedTasks: map[string]tasks.Task{}}
}

// ThreadLogDoc is the layout of data/thread_log.json
type ThreadLogDoc struct {
	Entries map[string]Entry `json:"entries"`
}

// NewThreadLogDoc returns an empty thread log
func NewThreadLogDoc() ThreadLogDoc {
	return ThreadLogDoc{Entries: map[string]Entry{}}
}

// WorkingMemoryDoc is the layout of data/working_memory.json. Older files
// hold a bare array of entries; those are read into ThreadLogs.
type WorkingMemoryDoc struct {
	ThreadLogs []Entry `json:"thread_logs"`
}

// NewWorkingMemoryDoc returns an empty working memory
func NewWorkingMemoryDoc() WorkingMemoryDoc {
	return WorkingMemoryDoc{ThreadLogs: []Entry{}}
}

func (d *WorkingMemoryDoc) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var logs []Entry
		if err := json.Unmarshal(trimmed, &logs); err != nil {
			return err
		}
		d.ThreadLogs = logs
		return nil
	}

	type plain WorkingMemoryDoc
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*d = WorkingMemoryDoc(p)
	return nil
}

// LogArchiveDoc is the layout of data/thread_log_archive.json
type LogArchiveDoc struct {
	ArchivedEntries map[string]Entry `json:"archived_entries"`
	ArchivedLogs    []Entry          `json:"archived_logs"`
	LastArchived    *tasks.Timestamp `json:"last_archived"`
	TotalArchived   int              `json:"total_archived"`
}

// NewLogArchiveDoc returns an empty log archive
func NewLogArchiveDoc() LogArchiveDoc {
	return LogArchiveDoc{ArchivedEntries: map[string]Entry{}, ArchivedLogs: []Entry{}}
}

// ExecutionLogDoc is the layout of data/execution_log.json. Like working
// memory, a bare array is accepted.
type ExecutionLogDoc struct {
	Executions []Entry `json:"executions"`
}

// NewExecutionLogDoc returns an empty execution log
func NewExecutionLogDoc() ExecutionLogDoc {
	return ExecutionLogDoc{Executions: []Entry{}}
}

func (d *ExecutionLogDoc) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &d.Executions)
	}

	type plain ExecutionLogDoc
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*d = ExecutionLogDoc(p)
	return nil
}

func (d *QueueDoc) normalize() {
	if d.Tasks == nil {
		d.Tasks = map[string]tasks.Task{}
	}
}

func (d *TaskArchiveDoc) normalize() {
	if d.ArchivedTasks == nil {
		d.ArchivedTasks = map[string]tasks.Task{}
	}
}

func (d *ThreadLogDoc) normalize() {
	if d.Entries == nil {
		d.Entries = map[string]Entry{}
	}
}

func (d *WorkingMemoryDoc) normalize() {
	if d.ThreadLogs == nil {
		d.ThreadLogs = []Entry{}
	}
}

func (d *LogArchiveDoc) normalize() {
	if d.ArchivedEntries == nil {
		d.ArchivedEntries = map[string]Entry{}
	}
	if d.ArchivedLogs == nil {
		d.ArchivedLogs = []Entry{}
	}
}

func (d *ExecutionLogDoc) normalize() {
	if d.Executions == nil {
		d.Executions = []Entry{}
	}
}
