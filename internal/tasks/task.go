package tasks

import (
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a task
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusDone, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusDone || to == StatusError || to == StatusCancelled || to == StatusQueued
	default:
		return false
	}
}

// Context holds structured metadata extracted from a task description
type Context struct {
	DocID string `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
}

// Telemetry is a token usage snapshot attached to a completion
type Telemetry struct {
	RawInput      int64 `json:"tokens_raw_input"`
	Output        int64 `json:"tokens_output"`
	CacheRead     int64 `json:"tokens_cache_read"`
	CacheCreation int64 `json:"tokens_cache_creation"`
	// TotalInput is RawInput + CacheRead + CacheCreation; cache traffic is
	// billed as input.
	TotalInput int64 `json:"tokens_input"`
}

// NewTelemetry builds a snapshot and derives TotalInput.
func NewTelemetry(rawInput, output, cacheRead, cacheCreation int64) Telemetry {
	t := Telemetry{
		RawInput:      rawInput,
		Output:        output,
		CacheRead:     cacheRead,
		CacheCreation: cacheCreation,
	}
	t.Recompute()
	return t
}

// Recompute refreshes the derived total from the four counters
func (t *Telemetry) Recompute() {
	t.TotalInput = t.RawInput + t.CacheRead + t.CacheCreation
}

// Add accumulates another snapshot into t
func (t *Telemetry) Add(o Telemetry) {
	t.RawInput += o.RawInput
	t.Output += o.Output
	t.CacheRead += o.CacheRead
	t.CacheCreation += o.CacheCreation
	t.Recompute()
}

// Validate rejects negative counters
func (t Telemetry) Validate() error {
	if t.RawInput < 0 || t.Output < 0 || t.CacheRead < 0 || t.CacheCreation < 0 {
		return Malformed("telemetry counters must not be negative: %+v", t)
	}
	return nil
}

// IsZero reports whether no tokens were counted
func (t Telemetry) IsZero() bool {
	return t.RawInput == 0 && t.Output == 0 && t.CacheRead == 0 && t.CacheCreation == 0
}

// Task is a unit of work derived from one markdown header segment
type Task struct {
	ID          string  `json:"task_id"`
	Description string  `json:"description"`
	Context     Context `json:"context"`
	Status      Status  `json:"status"`

	BatchID       string `json:"batch_id,omitempty"`
	BatchPosition int    `json:"batch_position,omitempty"`

	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	StartedAt   *Timestamp `json:"started_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
	CancelledAt *Timestamp `json:"cancelled_at,omitempty"`
	ResetAt     *Timestamp `json:"reset_at,omitempty"`

	ExecutionTimeSeconds float64    `json:"execution_time_seconds,omitempty"`
	OutputSummary        string     `json:"output_summary,omitempty"`
	Errors               string     `json:"errors,omitempty"`
	Telemetry            *Telemetry `json:"telemetry,omitempty"`
}

// New builds a queued task from a description, deriving its id and context.
func New(description string) Task {
	return Task{
		ID:          GenerateID(description),
		Description: description,
		Context:     Context{DocID: ExtractDocID(description)},
		Status:      StatusQueued,
	}
}

// LastActivity returns the most recent lifecycle timestamp, or the zero time.
func (t *Task) LastActivity() time.Time {
	var latest time.Time
	for _, ts := range []*Timestamp{t.CreatedAt, t.StartedAt, t.CompletedAt, t.CancelledAt, t.ResetAt} {
		if ts != nil && ts.After(latest) {
			latest = ts.Time
		}
	}
	return latest
}

// Summary truncates the description for log entries
func (t *Task) Summary(max int) string {
	return Truncate(t.Description, max)
}

// Truncate cuts s to at most max bytes on a rune boundary and marks the cut
// with "...". max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

