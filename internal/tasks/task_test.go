package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusQueued, StatusInProgress, StatusDone, StatusError, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusQueued, StatusInProgress}:    true,
		{StatusQueued, StatusCancelled}:     true,
		{StatusInProgress, StatusDone}:      true,
		{StatusInProgress, StatusError}:     true,
		{StatusInProgress, StatusCancelled}: true,
		{StatusInProgress, StatusQueued}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusError, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
		for _, to := range []Status{StatusQueued, StatusInProgress, StatusDone, StatusError, StatusCancelled} {
			if CanTransition(s, to) {
				t.Errorf("Expected no transition %s -> %s", s, to)
			}
		}
	}
	if StatusQueued.IsTerminal() || StatusInProgress.IsTerminal() {
		t.Error("Expected queued and in_progress to be non-terminal")
	}
	if Status("paused").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestTelemetryArithmetic(t *testing.T) {
	tel := NewTelemetry(10, 7, 3, 2)
	if tel.TotalInput != 15 {
		t.Errorf("Expected tokens_input 15, got %d", tel.TotalInput)
	}

	tel.Add(NewTelemetry(1, 1, 1, 1))
	if tel.TotalInput != 18 || tel.Output != 8 {
		t.Errorf("Unexpected sum %+v", tel)
	}

	if !(Telemetry{}).IsZero() {
		t.Error("Expected empty telemetry to be zero")
	}
}

func TestTaskLastActivity(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	task := Task{
		CreatedAt:   Stamp(base),
		StartedAt:   Stamp(base.Add(time.Minute)),
		CompletedAt: Stamp(base.Add(time.Hour)),
	}
	if got := task.LastActivity(); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("LastActivity = %v, want %v", got, base.Add(time.Hour))
	}

	var empty Task
	if !empty.LastActivity().IsZero() {
		t.Error("Expected zero time for a task without timestamps")
	}
}

func TestTaskSummary(t *testing.T) {
	task := Task{Description: "abcdefghij"}
	if got := task.Summary(4); got != "abcd..." {
		t.Errorf("Summary(4) = %q", got)
	}
	if got := task.Summary(20); got != "abcdefghij" {
		t.Errorf("Summary(20) = %q", got)
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("claim: %w", InvalidState("x_0123456789ab", "claim", StatusDone))
	if !errors.Is(err, ErrInvalidState) {
		t.Error("Expected ErrInvalidState through wrapping")
	}
	if IsInputError(err) {
		t.Error("Expected invalid state not to be an input error")
	}

	var te *Error
	if !errors.As(err, &te) || te.TaskID != "x_0123456789ab" {
		t.Errorf("Expected typed error carrying the task id, got %v", err)
	}

	cause := errors.New("disk full")
	ioErr := IOFailure(cause, "write %s", "queue")
	if !errors.Is(ioErr, ErrIO) || !errors.Is(ioErr, cause) {
		t.Error("Expected io failure to match both kind and cause")
	}
	if !IsInputError(ioErr) || !IsInputError(Malformed("bad json")) {
		t.Error("Expected io and malformed errors to be input errors")
	}
	if !errors.Is(NotFound("nope"), ErrNotFound) {
		t.Error("Expected ErrNotFound")
	}
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T10:00:00Z", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00+02:00", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00.123456", time.Date(2025, 3, 1, 10, 0, 0, 123456000, loc)},
		{"2025-03-01T10:00:00", time.Date(2025, 3, 1, 10, 0, 0, 0, loc)},
		{"2025-03-01 10:00:00", time.Date(2025, 3, 1, 10, 0, 0, 0, loc)},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in, loc)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "2025-13-01"} {
		if _, err := ParseTimestamp(bad, loc); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestTaskJSONAcceptsNaiveTimestamps(t *testing.T) {
	data := []byte(`{"task_id":"x_0123456789ab","description":"x","context":{},"status":"done",
		"created_at":"2025-03-01T10:00:00.5","completed_at":"2025-03-01T11:00:00Z"}`)

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if task.CreatedAt == nil || task.CreatedAt.Hour() != 10 {
		t.Errorf("Unexpected created_at %v", task.CreatedAt)
	}

	out, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"completed_at":"2025-03-01T11:00:00Z"`) {
		t.Errorf("Expected RFC 3339 completed_at, got %s", out)
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	// "é" is two bytes; cutting at 2 would split it
	if got := Truncate("aé", 2); got != "a..." {
		t.Errorf("Truncate = %q, want %q", got, "a...")
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("Expected no truncation for max 0, got %q", got)
	}
}
