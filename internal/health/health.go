// Package health audits the queue and its surroundings without changing
// anything: configured processes, tasks stuck in progress, a stale advisory
// marker, and whether recent completions still carry telemetry and batch ids.
package health

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

const (
	// DefaultStaleAfter is the marker age at which it is reported as stale
	DefaultStaleAfter = 30 * time.Minute
	recentSample      = 3
)

// ProcessChecker reports whether a process matching pattern is running
type ProcessChecker interface {
	Running(ctx context.Context, pattern string) (bool, error)
}

// Pgrep checks processes with `pgrep -f`
type Pgrep struct{}

func (Pgrep) Running(ctx context.Context, pattern string) (bool, error) {
	err := exec.CommandContext(ctx, "pgrep", "-f", pattern).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// RecentLister returns the newest finished tasks
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]tasks.Task, error)
}

// Options wires an Auditor
type Options struct {
	Queue      store.QueueStore
	Recent     RecentLister
	MarkerPath string
	Processes  []string
	StaleAfter time.Duration
	Checker    ProcessChecker
	Now        func() time.Time
}

// Auditor runs read-only consistency checks
type Auditor struct {
	opts Options
}

// New creates an Auditor, defaulting to pgrep and a 30 minute stale window.
func New(opts Options) *Auditor {
	if opts.Checker == nil {
		opts.Checker = Pgrep{}
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Auditor{opts: opts}
}

// Check is one pass/fail line of a report
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

// RecentTask summarises one completion for the report
type RecentTask struct {
	TaskID               string  `json:"task_id"`
	Status               string  `json:"status"`
	BatchID              string  `json:"batch_id,omitempty"`
	TokensInput          *int64  `json:"tokens_input,omitempty"`
	CompletedAt          string  `json:"completed_at"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// Report is the auditor's output
type Report struct {
	Healthy bool    `json:"healthy"`
	Checks  []Check `json:"checks"`

	Processes map[string]bool `json:"processes"`

	Queued        int           `json:"queued"`
	InProgress    int           `json:"in_progress"`
	Stuck         []string      `json:"stuck,omitempty"`
	Marker        *store.Marker `json:"marker,omitempty"`
	MarkerAgeSecs float64       `json:"marker_age_seconds,omitempty"`
	MarkerStale   bool          `json:"marker_stale"`

	Recent          []RecentTask `json:"recent"`
	RecentTelemetry bool         `json:"recent_have_telemetry"`
	RecentBatch     bool         `json:"recent_have_batch_id"`
}

func (r *Report) add(name string, ok bool, detail, fix string) {
	c := Check{Name: name, OK: ok, Detail: detail}
	if !ok {
		c.Fix = fix
		r.Healthy = false
	}
	r.Checks = append(r.Checks, c)
}

// Run audits the installation. Errors reading a store end the audit; a
// failing process probe is reported as a failed check.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	rep := &Report{Healthy: true, Processes: map[string]bool{}, Recent: []RecentTask{}}

	for _, name := range a.opts.Processes {
		running, err := a.opts.Checker.Running(ctx, name)
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		rep.Processes[name] = running
		rep.add(name+" running", running, detail, "start "+name)
	}

	var inProgress []string
	err := a.opts.Queue.View(ctx, func(active map[string]tasks.Task) error {
		for id, t := range active {
			switch t.Status {
			case tasks.StatusQueued:
				rep.Queued++
			case tasks.StatusInProgress:
				inProgress = append(inProgress, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, tasks.IOFailure(err, "read queue")
	}
	sort.Strings(inProgress)
	rep.InProgress = len(inProgress)

	var marker *store.Marker
	if a.opts.MarkerPath != "" {
		marker, err = store.ReadMarker(a.opts.MarkerPath)
		if err != nil {
			return nil, tasks.IOFailure(err, "read marker")
		}
	}
	rep.Marker = marker

	if marker == nil && len(inProgress) > 0 {
		rep.Stuck = inProgress
	}
	rep.add("no tasks stuck in progress", len(rep.Stuck) == 0, strings.Join(rep.Stuck, ", "), "reset the stuck tasks or wait for their executor")

	if marker != nil {
		age := marker.Age(a.opts.Now())
		rep.MarkerAgeSecs = age.Seconds()
		rep.MarkerStale = age > a.opts.StaleAfter
		rep.add("execution marker fresh", !rep.MarkerStale, age.Round(time.Second).String(), "check the executor; remove the marker if it died")
	}

	if a.opts.Recent != nil {
		recent, err := a.opts.Recent.Recent(ctx, recentSample)
		if err != nil {
			return nil, err
		}
		for _, t := range recent {
			rt := RecentTask{TaskID: t.ID, Status: string(t.Status), BatchID: t.BatchID, ExecutionTimeSeconds: t.ExecutionTimeSeconds}
			if t.CompletedAt != nil {
				rt.CompletedAt = t.CompletedAt.Format(time.RFC3339)
			}
			if t.Telemetry != nil {
				total := t.Telemetry.TotalInput
				rt.TokensInput = &total
				rep.RecentTelemetry = true
			}
			if t.BatchID != "" {
				rep.RecentBatch = true
			}
			rep.Recent = append(rep.Recent, rt)
		}
		if len(recent) > 0 {
			rep.add("recent tasks have token data", rep.RecentTelemetry, "", "check that the telemetry hook is installed")
			rep.add("recent tasks have batch_id", rep.RecentBatch, "", "enqueue work through enqueue_batch or enqueue_doc")
		}
	}

	return rep, nil
}
