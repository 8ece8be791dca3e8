package telemetry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orchestrate/jarvis/internal/tasks"
)

//go:embed schema.sql
var schemaSQL string

// Ledger keeps a SQLite history of completion telemetry
type Ledger struct {
	db *sql.DB
}

// Record is one completion with its token snapshot
type Record struct {
	TaskID          string          `json:"task_id"`
	BatchID         string          `json:"batch_id,omitempty"`
	BatchPosition   int             `json:"batch_position,omitempty"`
	Status          tasks.Status    `json:"status"`
	Telemetry       tasks.Telemetry `json:"telemetry"`
	DurationSeconds float64         `json:"duration_seconds"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// IncrementalInput is the input charged to this completion. Batch members
// after the first share the first completion's input context.
func (r Record) IncrementalInput() int64 {
	if r.BatchID != "" && r.BatchPosition > 1 {
		return 0
	}
	return r.Telemetry.TotalInput
}

// Used is the incremental input plus output
func (r Record) Used() int64 {
	return r.IncrementalInput() + r.Telemetry.Output
}

// Summary aggregates the ledger
type Summary struct {
	TotalSessions       int      `json:"total_sessions"`
	TotalTokensUsed     int64    `json:"total_tokens_used"`
	TotalOutput         int64    `json:"total_tokens_output"`
	TotalCacheRead      int64    `json:"total_tokens_cache_read"`
	AvgTokensPerSession float64  `json:"avg_tokens_per_session"`
	AvgDurationSeconds  float64  `json:"avg_duration_seconds"`
	Weekly              Weekly   `json:"weekly_usage"`
	Recent              []Record `json:"recent_sessions"`
}

// Weekly is usage since the most recent Monday 00:00
type Weekly struct {
	WeekStart        time.Time `json:"week_start"`
	TotalUsed        int64     `json:"total_used"`
	TotalAvailable   int64     `json:"total_available"`
	Remaining        int64     `json:"remaining"`
	PercentUsed      float64   `json:"percent_used"`
	SessionsThisWeek int       `json:"sessions_this_week"`
}

// OpenLedger opens (or creates) the ledger database at path
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one completion
func (l *Ledger) Record(ctx context.Context, r Record) error {
	t := r.Telemetry
	t.Recompute()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO completions (
			task_id, batch_id, batch_position, status,
			tokens_raw_input, tokens_output, tokens_cache_read, tokens_cache_creation,
			tokens_input, incremental_input, duration_seconds, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, nullString(r.BatchID), r.BatchPosition, string(r.Status),
		t.RawInput, t.Output, t.CacheRead, t.CacheCreation,
		t.TotalInput, r.IncrementalInput(), r.DurationSeconds, r.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record completion %s: %w", r.TaskID, err)
	}
	return nil
}

// Summary totals the ledger and measures the current week against
// weeklyLimit.
func (l *Ledger) Summary(ctx context.Context, now time.Time, weeklyLimit int64) (*Summary, error) {
	s := &Summary{Recent: []Record{}}

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(incremental_input + tokens_output), 0),
		       COALESCE(SUM(tokens_output), 0),
		       COALESCE(SUM(tokens_cache_read), 0),
		       COALESCE(AVG(duration_seconds), 0)
		FROM completions`,
	).Scan(&s.TotalSessions, &s.TotalTokensUsed, &s.TotalOutput, &s.TotalCacheRead, &s.AvgDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("summary query failed: %w", err)
	}
	if s.TotalSessions > 0 {
		s.AvgTokensPerSession = float64(s.TotalTokensUsed) / float64(s.TotalSessions)
	}

	weekStart := WeekStart(now)
	s.Weekly = Weekly{WeekStart: weekStart, TotalAvailable: weeklyLimit}
	err = l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(incremental_input + tokens_output), 0)
		FROM completions
		WHERE recorded_at >= ?`,
		weekStart.UnixNano(),
	).Scan(&s.Weekly.SessionsThisWeek, &s.Weekly.TotalUsed)
	if err != nil {
		return nil, fmt.Errorf("weekly query failed: %w", err)
	}
	s.Weekly.Remaining = weeklyLimit - s.Weekly.TotalUsed
	if weeklyLimit > 0 {
		s.Weekly.PercentUsed = float64(s.Weekly.TotalUsed) / float64(weeklyLimit) * 100
	}

	s.Recent, err = l.recent(ctx, 5)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Ledger) recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT task_id, batch_id, batch_position, status,
		       tokens_raw_input, tokens_output, tokens_cache_read, tokens_cache_creation,
		       duration_seconds, recorded_at
		FROM completions
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent query failed: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r        Record
			batchID  sql.NullString
			status   string
			recorded int64
		)
		err := rows.Scan(
			&r.TaskID, &batchID, &r.BatchPosition, &status,
			&r.Telemetry.RawInput, &r.Telemetry.Output, &r.Telemetry.CacheRead, &r.Telemetry.CacheCreation,
			&r.DurationSeconds, &recorded,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.BatchID = batchID.String
		r.Status = tasks.Status(status)
		r.Telemetry.Recompute()
		r.RecordedAt = time.Unix(0, recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeekStart returns Monday 00:00 of the week containing now, in now's
// location.
func WeekStart(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
