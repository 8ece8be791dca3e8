package tasks

import (
	"strings"
)

// ParseDocument splits a markdown document into tasks, one per header
// segment. A line whose trimmed form starts with '#' opens a new segment
// that runs up to the next such line. Text before the first header is not
// part of any task.
//
// The result is built eagerly and depends only on text, so parsing the same
// document twice yields equal slices.
func ParseDocument(text string) []Task {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out     []Task
		segment []string
		inTask  bool
	)

	flush := func() {
		if !inTask || len(segment) == 0 {
			return
		}
		description := strings.Join(segment, "\n")
		if strings.TrimSpace(description) != "" {
			out = append(out, New(description))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			flush()
			segment = []string{line}
			inTask = true
			continue
		}
		if inTask {
			segment = append(segment, line)
		}
	}
	flush()

	return out
}
