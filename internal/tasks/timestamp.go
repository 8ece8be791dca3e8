package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// naiveLayouts are the zone-less ISO-8601 forms written by older tooling.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the naive ISO-8601 forms above.
// Naive values are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Timestamp is a task lifecycle time. It is written as RFC 3339 and read
// from any form ParseTimestamp accepts, naive values in local time.
type Timestamp struct {
	time.Time
}

// Stamp returns a Timestamp for t, for use in the optional task fields.
func Stamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s, time.Local)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
