package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestrate/jarvis/internal/tasks"
)

func TestWeekStart(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		// Wednesday
		{time.Date(2025, 3, 5, 15, 30, 0, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
		// Monday
		{time.Date(2025, 3, 3, 0, 0, 1, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
		// Sunday belongs to the week that started six days earlier
		{time.Date(2025, 3, 9, 23, 0, 0, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		if got := WeekStart(tt.now); !got.Equal(tt.want) {
			t.Errorf("WeekStart(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestRecordIncrementalInput(t *testing.T) {
	t.Parallel()

	tel := tasks.NewTelemetry(10, 7, 3, 2)
	solo := Record{Telemetry: tel}
	first := Record{BatchID: "b", BatchPosition: 1, Telemetry: tel}
	later := Record{BatchID: "b", BatchPosition: 2, Telemetry: tel}

	if solo.IncrementalInput() != 15 || first.IncrementalInput() != 15 {
		t.Error("Expected full input for solo and first batch completions")
	}
	if later.IncrementalInput() != 0 || later.Used() != 7 {
		t.Errorf("Expected shared input for later batch completion, got %d used", later.Used())
	}
}

func TestLedgerSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l, err := OpenLedger(filepath.Join(t.TempDir(), "data", "telemetry.db"))
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	defer l.Close()

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	records := []Record{
		// previous week
		{TaskID: "old_0123456789ab", Status: tasks.StatusDone, Telemetry: tasks.NewTelemetry(100, 50, 0, 0), RecordedAt: now.AddDate(0, 0, -7)},
		{TaskID: "a_0123456789ab", BatchID: "b", BatchPosition: 1, Status: tasks.StatusDone, Telemetry: tasks.NewTelemetry(10, 7, 3, 2), DurationSeconds: 10, RecordedAt: now.Add(-time.Hour)},
		{TaskID: "b_0123456789ab", BatchID: "b", BatchPosition: 2, Status: tasks.StatusError, Telemetry: tasks.NewTelemetry(10, 5, 0, 0), DurationSeconds: 20, RecordedAt: now},
	}
	for _, r := range records {
		if err := l.Record(ctx, r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	s, err := l.Summary(ctx, now, 1000)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if s.TotalSessions != 3 {
		t.Errorf("Expected 3 sessions, got %d", s.TotalSessions)
	}
	// 150 + (15+7) + (0+5)
	if s.TotalTokensUsed != 177 {
		t.Errorf("Expected 177 tokens used, got %d", s.TotalTokensUsed)
	}
	if s.Weekly.SessionsThisWeek != 2 || s.Weekly.TotalUsed != 27 {
		t.Errorf("Unexpected weekly usage %+v", s.Weekly)
	}
	if s.Weekly.Remaining != 973 {
		t.Errorf("Expected 973 remaining, got %d", s.Weekly.Remaining)
	}
	if len(s.Recent) != 3 || s.Recent[0].TaskID != "b_0123456789ab" {
		t.Errorf("Expected most recent first, got %+v", s.Recent)
	}
	if s.Recent[0].BatchID != "b" || s.Recent[2].BatchID != "" {
		t.Errorf("Unexpected batch ids in recent %+v", s.Recent)
	}
}

func TestLedgerEmptySummary(t *testing.T) {
	t.Parallel()

	l, err := OpenLedger(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	defer l.Close()

	s, err := l.Summary(context.Background(), time.Now(), 200000)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.TotalSessions != 0 || s.Weekly.Remaining != 200000 || len(s.Recent) != 0 {
		t.Errorf("Unexpected empty summary %+v", s)
	}
}
