package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchestrate/jarvis/internal/config"
	"github.com/orchestrate/jarvis/internal/queue"
	"github.com/orchestrate/jarvis/internal/tasks"
)

// response is the JSON object printed for every action
type response map[string]any

type handler func(ctx context.Context, app *App, params json.RawMessage) (response, error)

type action struct {
	name    string
	short   string
	mutates bool
	run     handler
}

// actions is the closed set of orchestrate actions
var actions = []action{
	{"enqueue", "Add one task to the queue", true, runEnqueue},
	{"enqueue_batch", "Add several tasks under one batch id", true, runEnqueueBatch},
	{"enqueue_doc", "Parse a markdown plan and enqueue its tasks as a batch", true, runEnqueueDoc},
	{"claim", "Move a queued task to in_progress", true, runClaim},
	{"complete", "Finish an in-progress task as done or error", true, runComplete},
	{"cancel", "Cancel a queued or in-progress task", true, runCancel},
	{"reset", "Return an in-progress task to the queue", true, runReset},
	{"status", "Show one task, or queue counts", false, runStatus},
	{"recent", "List the most recently finished tasks", false, runRecent},
	{"archive_tasks", "Move finished tasks to the archive", true, runArchiveTasks},
	{"archive_logs", "Move aged log entries to the log archive", true, runArchiveLogs},
	{"search_archive", "Search archived log entries by keyword", false, runSearchArchive},
	{"archive_execution_log", "Rotate the execution log into daily NDJSON files", true, runArchiveExecutionLog},
	{"read_execution_archive", "Read archived executions for a date range", false, runReadExecutionArchive},
	{"health", "Audit queue consistency", false, runHealth},
	{"check_write", "Ask whether a tool may write a file directly", false, runCheckWrite},
	{"telemetry_summary", "Summarise recorded token usage", false, runTelemetrySummary},
}

func actionCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(actions))
	for _, a := range actions {
		a := a
		cmd := &cobra.Command{
			Use:   a.name,
			Short: a.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, _ := cmd.Flags().GetString("params")
				return runAction(cmd.Context(), cmd.OutOrStdout(), a, raw)
			},
		}
		cmd.Flags().String("params", "{}", "Action parameters as a JSON object")
		cmds = append(cmds, cmd)
	}
	return cmds
}

// runAction executes a against the resolved root and prints its result. The
// returned error is non-nil only for malformed input and store failures.
func runAction(ctx context.Context, out io.Writer, a action, raw string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := parseParams(raw)
	if err != nil {
		return report(out, nil, err)
	}

	root, err := config.ResolveRoot(rootFlag)
	if err != nil {
		return report(out, nil, tasks.IOFailure(err, "resolve root"))
	}
	app, err := openApp(ctx, root, !a.mutates)
	if err != nil {
		return report(out, nil, tasks.IOFailure(err, "open stores"))
	}
	defer app.Close()

	resp, err := a.run(ctx, app, params)

	if a.mutates {
		status := "success"
		if err != nil {
			status = "error"
		} else if s, ok := resp["status"].(string); ok {
			status = s
		}
		if logErr := app.Archiver.LogExecution(ctx, "orchestrate", a.name, params, status); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", logErr)
		}
	}

	return report(out, resp, err)
}

func parseParams(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, tasks.Malformed("--params must be a JSON object: %v", err)
	}
	return json.RawMessage(raw), nil
}

// report prints resp, or an error object for err, and maps err to the exit
// status.
func report(out io.Writer, resp response, err error) error {
	if err != nil {
		resp = response{"status": "error", "message": err.Error()}
		var te *tasks.Error
		if errors.As(err, &te) {
			resp["error_kind"] = te.Kind.Error()
			if te.TaskID != "" {
				resp["task_id"] = te.TaskID
			}
		}
	}
	if resp == nil {
		resp = response{}
	}
	if _, ok := resp["status"]; !ok {
		resp["status"] = "success"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return fmt.Errorf("failed to encode result: %w", encErr)
	}
	if _, werr := out.Write(buf.Bytes()); werr != nil {
		return werr
	}

	if err != nil && tasks.IsInputError(err) {
		return errReported
	}
	return nil
}

// decode unmarshals params into v, reporting failures as malformed input.
func decode(params json.RawMessage, v any) error {
	if err := json.Unmarshal(params, v); err != nil {
		return tasks.Malformed("invalid parameters: %v", err)
	}
	return nil
}

type taskIDParams struct {
	TaskID string `json:"task_id"`
}

func requireTaskID(params json.RawMessage) (string, error) {
	var p taskIDParams
	if err := decode(params, &p); err != nil {
		return "", err
	}
	if p.TaskID == "" {
		return "", tasks.Malformed("missing required field: task_id")
	}
	return p.TaskID, nil
}

func runEnqueue(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		TaskID      string `json:"task_id"`
		Description string `json:"description"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, tasks.Malformed("missing required field: description")
	}

	res, err := app.Manager.Enqueue(ctx, tasks.Task{ID: p.TaskID, Description: p.Description})
	if err != nil {
		return nil, err
	}

	message := "Task " + res.TaskID + " queued"
	if res.Outcome == queue.OutcomeNoop {
		message = "Task " + res.TaskID + " " + res.Reason
	}
	return response{"status": res.Outcome, "message": message, "task_id": res.TaskID}, nil
}

func runEnqueueBatch(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		Tasks []queue.BatchItem `json:"tasks"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	res, err := app.Manager.EnqueueBatch(ctx, p.Tasks)
	if err != nil {
		return nil, err
	}
	return batchResponse(res), nil
}

func runEnqueueDoc(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		Text string `json:"text"`
		Path string `json:"path"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	text := p.Text
	if text == "" && p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, tasks.IOFailure(err, "read plan %s", p.Path)
		}
		text = string(data)
	}
	if text == "" {
		return nil, tasks.Malformed("missing required field: text or path")
	}

	res, err := app.Manager.EnqueueDocument(ctx, text)
	if err != nil {
		return nil, err
	}
	return batchResponse(res), nil
}

func batchResponse(res *queue.BatchResult) response {
	status := "success"
	if res.SuccessCount == 0 {
		status = queue.OutcomeNoop
	}
	return response{
		"status":        status,
		"message":       fmt.Sprintf("Queued %d of %d tasks in batch %s", res.SuccessCount, res.Total, res.BatchID),
		"batch_id":      res.BatchID,
		"success_count": res.SuccessCount,
		"noop_count":    res.NoopCount,
		"total":         res.Total,
		"results":       res.Results,
	}
}

func runClaim(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	id, err := requireTaskID(params)
	if err != nil {
		return nil, err
	}
	task, err := app.Manager.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return response{"message": "Task " + id + " in progress", "task_id": id, "task": task}, nil
}

func runComplete(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		TaskID               string           `json:"task_id"`
		Status               tasks.Status     `json:"status"`
		OutputSummary        string           `json:"output_summary"`
		Errors               string           `json:"errors"`
		ExecutionTimeSeconds float64          `json:"execution_time_seconds"`
		Telemetry            *tasks.Telemetry `json:"telemetry"`
		TranscriptPath       string           `json:"transcript_path"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.TaskID == "" {
		return nil, tasks.Malformed("missing required field: task_id")
	}
	if p.Status == "" {
		p.Status = tasks.StatusDone
	}

	res, err := app.Manager.Complete(ctx, p.TaskID, queue.Completion{
		Outcome:              p.Status,
		OutputSummary:        p.OutputSummary,
		Errors:               p.Errors,
		ExecutionTimeSeconds: p.ExecutionTimeSeconds,
		Telemetry:            p.Telemetry,
		TranscriptPath:       p.TranscriptPath,
	})
	if err != nil {
		return nil, err
	}
	return response{
		"message":          "Task " + p.TaskID + " marked " + string(res.Task.Status),
		"task_id":          p.TaskID,
		"task":             res.Task,
		"telemetry_merged": res.TelemetryMerged,
		"telemetry_source": res.TelemetrySource,
	}, nil
}

func runCancel(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	id, err := requireTaskID(params)
	if err != nil {
		return nil, err
	}
	task, previous, err := app.Manager.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return response{
		"message":         "Task " + id + " cancelled",
		"task_id":         id,
		"previous_status": previous,
		"task":            task,
	}, nil
}

func runReset(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	id, err := requireTaskID(params)
	if err != nil {
		return nil, err
	}
	task, err := app.Manager.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	return response{"message": "Task " + id + " returned to the queue", "task_id": id, "task": task}, nil
}

func runStatus(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p taskIDParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	if p.TaskID == "" {
		counts, err := app.Manager.Counts(ctx)
		if err != nil {
			return nil, err
		}
		return response{
			"message": fmt.Sprintf("%d queued, %d in progress, %d archived", counts.Queued, counts.InProgress, counts.Archived),
			"counts":  counts,
		}, nil
	}

	found, err := app.Manager.Get(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	return response{
		"message":     "Task " + p.TaskID + " is " + string(found.Task.Status),
		"task_id":     p.TaskID,
		"task_status": found.Task.Status,
		"location":    found.Location,
		"task":        found.Task,
	}, nil
}

func runRecent(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	recent, err := app.Manager.Recent(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []tasks.Task{}
	}
	return response{
		"message":    fmt.Sprintf("Found %d recent finished task(s)", len(recent)),
		"tasks":      recent,
		"task_count": len(recent),
	}, nil
}

func runArchiveTasks(ctx context.Context, app *App, _ json.RawMessage) (response, error) {
	res, err := app.Archiver.ArchiveTasks(ctx)
	if err != nil {
		return nil, err
	}
	status := "success"
	if res.ArchivedCount == 0 {
		status = queue.OutcomeNoop
	}
	return response{
		"status":           status,
		"message":          fmt.Sprintf("Archived %d finished tasks. %d tasks remain in the queue.", res.ArchivedCount, res.RemainingCount),
		"archived_count":   res.ArchivedCount,
		"archived_ids":     res.ArchivedIDs,
		"remaining_count":  res.RemainingCount,
		"total_in_archive": res.TotalInArchive,
	}, nil
}

func runArchiveLogs(ctx context.Context, app *App, _ json.RawMessage) (response, error) {
	res, err := app.Archiver.ArchiveLogs(ctx)
	if err != nil {
		return nil, err
	}
	status := "success"
	if res.ArchivedCount == 0 {
		status = queue.OutcomeNoop
	}
	return response{
		"status":               status,
		"message":              fmt.Sprintf("Archived %d logs older than %d days", res.ArchivedCount, res.RetentionDays),
		"archived_count":       res.ArchivedCount,
		"recent_entries_count": res.RecentEntriesCount,
		"recent_logs_count":    res.RecentLogsCount,
		"total_in_archive":     res.TotalInArchive,
		"cutoff_date":          res.Cutoff,
	}, nil
}

func runSearchArchive(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		Keyword string `json:"keyword"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	res, err := app.Archiver.SearchArchive(ctx, p.Keyword)
	if err != nil {
		return nil, err
	}
	return response{
		"message": fmt.Sprintf("Found %d archived entries matching %q", res.Count, res.Keyword),
		"results": res.Results,
		"count":   res.Count,
	}, nil
}

func runArchiveExecutionLog(ctx context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		RetentionDays *int `json:"retention_days"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	days := app.Config.Retention.ExecutionLogDays
	if p.RetentionDays != nil {
		days = *p.RetentionDays
	}

	res, err := app.Archiver.ArchiveExecutionLog(ctx, days)
	if err != nil {
		return nil, err
	}
	status := "success"
	if res.ArchivedEntries == 0 {
		status = queue.OutcomeNoop
	}
	return response{
		"status":           status,
		"message":          fmt.Sprintf("Archived %d entries across %d dates", res.ArchivedEntries, len(res.ArchivedDates)),
		"archived_entries": res.ArchivedEntries,
		"archived_dates":   res.ArchivedDates,
		"retained_entries": res.RetainedEntries,
		"archive_location": res.ArchiveLocation,
	}, nil
}

func runReadExecutionArchive(_ context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.EndDate == "" {
		p.EndDate = p.StartDate
	}
	entries, err := app.Archiver.ReadExecutionArchive(p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}
	return response{
		"message":    fmt.Sprintf("Read %d archived executions", len(entries)),
		"executions": entries,
		"count":      len(entries),
	}, nil
}

func runHealth(ctx context.Context, app *App, _ json.RawMessage) (response, error) {
	rep, err := app.Auditor.Run(ctx)
	if err != nil {
		return nil, err
	}
	failed := 0
	for _, c := range rep.Checks {
		if !c.OK {
			failed++
		}
	}
	return response{
		"message": fmt.Sprintf("%d checks, %d failed", len(rep.Checks), failed),
		"healthy": rep.Healthy,
		"report":  rep,
	}, nil
}

func runCheckWrite(_ context.Context, app *App, params json.RawMessage) (response, error) {
	var p struct {
		ToolName string `json:"tool_name"`
		FilePath string `json:"file_path"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.ToolName == "" {
		return nil, tasks.Malformed("missing required field: tool_name")
	}

	d := app.Gate.Check(p.ToolName, p.FilePath)
	message := "allowed"
	if !d.Allowed {
		message = d.Message
	}
	return response{"message": message, "allowed": d.Allowed, "path": d.Path}, nil
}

func runTelemetrySummary(ctx context.Context, app *App, _ json.RawMessage) (response, error) {
	if app.Ledger == nil {
		return response{"status": "error", "message": "telemetry ledger is disabled or has no data yet (telemetry.ledger)"}, nil
	}
	s, err := app.Ledger.Summary(ctx, time.Now(), app.Config.Telemetry.WeeklyLimit)
	if err != nil {
		return nil, tasks.IOFailure(err, "telemetry summary")
	}
	return response{
		"message": fmt.Sprintf("%d sessions, %d tokens used this week of %d", s.TotalSessions, s.Weekly.TotalUsed, s.Weekly.TotalAvailable),
		"summary": s,
	}, nil
}
