package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

const dateLayout = "2006-01-02"

// LogExecution appends one record to the execution log.
func (a *Archiver) LogExecution(ctx context.Context, tool, action string, params any, status string) error {
	if a.execLog == nil {
		return nil
	}
	entry := store.Entry{
		"tool":      tool,
		"action":    action,
		"params":    params,
		"status":    status,
		"timestamp": a.now().Format(time.RFC3339),
	}
	err := a.execLog.Update(ctx, func(doc *store.ExecutionLogDoc) error {
		doc.Executions = append(doc.Executions, entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to log execution: %w", err)
	}
	return nil
}

// ExecutionResult reports an execution log rotation
type ExecutionResult struct {
	ArchivedEntries int      `json:"archived_entries"`
	ArchivedDates   []string `json:"archived_dates"`
	RetainedEntries int      `json:"retained_entries"`
	ArchiveLocation string   `json:"archive_location"`
}

// ArchiveExecutionLog moves execution log entries dated before the cutoff
// day (today minus retentionDays) into per-day NDJSON files, appending to
// any file already there. Entries are dated by the first ten characters of
// their timestamp; entries without a readable date stay in the log.
//
// Day files are appended before the log is rewritten. A pass that fails
// part way leaves its entries in the log, and the retry appends only the
// entries a day file does not already hold.
func (a *Archiver) ArchiveExecutionLog(ctx context.Context, retentionDays int) (*ExecutionResult, error) {
	if retentionDays < 0 {
		return nil, tasks.Malformed("retention_days must not be negative")
	}
	cutoff := a.now().AddDate(0, 0, -retentionDays).Format(dateLayout)
	res := &ExecutionResult{ArchiveLocation: a.execDir, ArchivedDates: []string{}}

	err := a.execLog.Update(ctx, func(doc *store.ExecutionLogDoc) error {
		byDate := map[string][]store.Entry{}
		recent := []store.Entry{}
		for _, e := range doc.Executions {
			date, ok := entryDate(e)
			if !ok || date >= cutoff {
				recent = append(recent, e)
				continue
			}
			byDate[date] = append(byDate[date], e)
		}
		res.RetainedEntries = len(recent)

		if len(byDate) == 0 {
			return store.ErrNoChange
		}

		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		for _, d := range dates {
			if err := appendNDJSON(filepath.Join(a.execDir, d+".ndjson"), byDate[d]); err != nil {
				return err
			}
			res.ArchivedEntries += len(byDate[d])
		}
		res.ArchivedDates = dates
		doc.Executions = recent
		return nil
	})
	if err != nil {
		return nil, ioError(err, "archive execution log")
	}

	if res.ArchivedEntries > 0 {
		a.log.Printf("archived %d execution entries across %d dates", res.ArchivedEntries, len(res.ArchivedDates))
	}
	return res, nil
}

func entryDate(e store.Entry) (string, bool) {
	ts := e.Timestamp()
	if len(ts) < len(dateLayout) {
		return "", false
	}
	date := ts[:len(dateLayout)]
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

// appendNDJSON appends entries to the day file at path, skipping any entry
// the file already records. Entries compare by their encoded form, counted,
// so identical entries archived in one pass are all kept.
func appendNDJSON(path string, entries []store.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	existing, err := readNDJSON(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	seen := map[string]int{}
	for _, e := range existing {
		if key, err := json.Marshal(e); err == nil {
			seen[string(key)]++
		}
	}

	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode execution entry: %w", err)
		}
		if seen[string(line)] > 0 {
			seen[string(line)]--
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// ReadExecutionArchive returns archived execution entries for the inclusive
// date range start..end (YYYY-MM-DD), oldest day first. Only day files that
// exist are read, so the cost follows the archive, not the width of the
// range. Lines that do not decode as objects are skipped.
func (a *Archiver) ReadExecutionArchive(start, end string) ([]store.Entry, error) {
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, tasks.Malformed("start_date %q is not YYYY-MM-DD", start)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, tasks.Malformed("end_date %q is not YYYY-MM-DD", end)
	}
	if to.Before(from) {
		return nil, tasks.Malformed("end_date %s is before start_date %s", end, start)
	}

	days, err := archivedDays(a.execDir, start, end)
	if err != nil {
		return nil, tasks.IOFailure(err, "list execution archive")
	}

	entries := []store.Entry{}
	for _, day := range days {
		got, err := readNDJSON(filepath.Join(a.execDir, day+".ndjson"))
		if err != nil {
			return nil, tasks.IOFailure(err, "read execution archive")
		}
		entries = append(entries, got...)
	}
	return entries, nil
}

// archivedDays lists the dates of day files in dir within start..end,
// sorted. YYYY-MM-DD names sort chronologically as strings.
func archivedDays(dir, start, end string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var days []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		day, ok := strings.CutSuffix(f.Name(), ".ndjson")
		if !ok || len(day) != len(dateLayout) || day < start || day > end {
			continue
		}
		if _, err := time.Parse(dateLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

func readNDJSON(path string) ([]store.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []store.Entry
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var e store.Entry
			if json.Unmarshal(line, &e) == nil && e != nil {
				out = append(out, e)
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
