package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/orchestrate/jarvis/internal/tasks"
)

// transcriptEvent is the part of a transcript line that carries usage.
// message is kept raw because some events carry a string there.
type transcriptEvent struct {
	Message json.RawMessage `json:"message"`
}

type messageUsage struct {
	Usage *usage `json:"usage"`
}

type usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// Aggregate sums token usage over every event of a JSONL transcript. Lines
// that are not JSON objects, events without message.usage, and events with a
// negative counter add nothing. Only a read error from r is returned.
func Aggregate(r io.Reader) (tasks.Telemetry, error) {
	var total tasks.Telemetry

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if u, ok := parseUsage(line); ok {
			total.RawInput += u.InputTokens
			total.Output += u.OutputTokens
			total.CacheRead += u.CacheReadInputTokens
			total.CacheCreation += u.CacheCreationInputTokens
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return total, fmt.Errorf("failed to read transcript: %w", err)
		}
	}

	total.Recompute()
	return total, nil
}

// AggregateFile aggregates the transcript at path
func AggregateFile(path string) (tasks.Telemetry, error) {
	f, err := os.Open(path)
	if err != nil {
		return tasks.Telemetry{}, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()
	return Aggregate(f)
}

func parseUsage(line []byte) (usage, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return usage{}, false
	}

	var ev transcriptEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return usage{}, false
	}
	msg := bytes.TrimSpace(ev.Message)
	if len(msg) == 0 || msg[0] != '{' {
		return usage{}, false
	}

	var m messageUsage
	if err := json.Unmarshal(msg, &m); err != nil || m.Usage == nil {
		return usage{}, false
	}
	u := *m.Usage
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.CacheReadInputTokens < 0 || u.CacheCreationInputTokens < 0 {
		return usage{}, false
	}
	return u, true
}
