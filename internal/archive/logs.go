package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orchestrate/jarvis/internal/notify"
	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/tasks"
)

// LogResult reports an age-based log archival pass
type LogResult struct {
	ArchivedCount      int       `json:"archived_count"`
	ArchivedEntries    int       `json:"archived_entries"`
	ArchivedLogs       int       `json:"archived_logs"`
	RecentEntriesCount int       `json:"recent_entries_count"`
	RecentLogsCount    int       `json:"recent_logs_count"`
	TotalInArchive     int       `json:"total_in_archive"`
	RetentionDays      int       `json:"retention_days"`
	Cutoff             time.Time `json:"cutoff_date"`
}

// isOld reports whether e falls strictly before cutoff. Entries without a
// readable timestamp are never old.
func isOld(e store.Entry, cutoff time.Time) bool {
	ts := e.Timestamp()
	if ts == "" {
		return false
	}
	t, err := tasks.ParseTimestamp(ts, cutoff.Location())
	if err != nil {
		return false
	}
	return t.Before(cutoff)
}

// ArchiveLogs moves thread-log entries and working-memory logs older than
// the retention window into the log archive. Thread-log entries are merged
// by key; working-memory logs are appended. Stores are locked in the order
// thread log, working memory, log archive, and the archive is written first.
func (a *Archiver) ArchiveLogs(ctx context.Context) (*LogResult, error) {
	now := a.now()
	cutoff := now.AddDate(0, 0, -a.retention)
	res := &LogResult{RetentionDays: a.retention, Cutoff: cutoff}

	err := a.threadLog.Update(ctx, func(thread *store.ThreadLogDoc) error {
		oldEntries := map[string]store.Entry{}
		for key, e := range thread.Entries {
			if isOld(e, cutoff) {
				oldEntries[key] = e
			}
		}

		memErr := a.memory.Update(ctx, func(mem *store.WorkingMemoryDoc) error {
			var recent, oldLogs []store.Entry
			for _, e := range mem.ThreadLogs {
				if isOld(e, cutoff) {
					oldLogs = append(oldLogs, e)
				} else {
					recent = append(recent, e)
				}
			}
			res.RecentLogsCount = len(recent)

			if len(oldEntries) == 0 && len(oldLogs) == 0 {
				return store.ErrNoChange
			}

			err := a.logArchive.Update(ctx, func(arch *store.LogArchiveDoc) error {
				for key, e := range oldEntries {
					arch.ArchivedEntries[key] = e
				}
				arch.ArchivedLogs = append(arch.ArchivedLogs, oldLogs...)
				arch.LastArchived = tasks.Stamp(now)
				arch.TotalArchived = len(arch.ArchivedEntries) + len(arch.ArchivedLogs)
				res.TotalInArchive = arch.TotalArchived
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to write log archive: %w", err)
			}

			res.ArchivedLogs = len(oldLogs)
			if len(oldLogs) == 0 {
				return store.ErrNoChange
			}
			if recent == nil {
				recent = []store.Entry{}
			}
			mem.ThreadLogs = recent
			return nil
		})
		if memErr != nil {
			return memErr
		}

		res.RecentEntriesCount = len(thread.Entries) - len(oldEntries)
		if len(oldEntries) == 0 {
			return store.ErrNoChange
		}
		for key := range oldEntries {
			delete(thread.Entries, key)
		}
		res.ArchivedEntries = len(oldEntries)
		return nil
	})
	if err != nil {
		return nil, ioError(err, "archive logs")
	}

	res.ArchivedCount = res.ArchivedEntries + res.ArchivedLogs
	if res.ArchivedCount > 0 {
		a.publish(ctx, notify.Event{Action: "archive_logs", Count: res.ArchivedCount})
	}
	return res, nil
}

// SearchResult is the outcome of an archive search
type SearchResult struct {
	Keyword string        `json:"keyword"`
	Results []store.Entry `json:"results"`
	Count   int           `json:"count"`
}

// SearchArchive returns archived log records with at least one string field
// containing keyword, ignoring case. Working-memory logs come first in
// archive order, then thread-log entries ordered by key.
func (a *Archiver) SearchArchive(ctx context.Context, keyword string) (*SearchResult, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, tasks.Malformed("keyword is required")
	}
	needle := strings.ToLower(keyword)
	res := &SearchResult{Keyword: keyword, Results: []store.Entry{}}

	err := a.logArchive.View(ctx, func(arch store.LogArchiveDoc) error {
		for _, e := range arch.ArchivedLogs {
			if matches(e, needle) {
				res.Results = append(res.Results, e)
			}
		}

		keys := make([]string, 0, len(arch.ArchivedEntries))
		for k := range arch.ArchivedEntries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if e := arch.ArchivedEntries[k]; matches(e, needle) {
				res.Results = append(res.Results, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, ioError(err, "search archive")
	}

	res.Count = len(res.Results)
	return res, nil
}

func matches(e store.Entry, needle string) bool {
	for _, v := range e {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
