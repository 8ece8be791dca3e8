package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const (
	slugWords   = 5
	hashDigits  = 12
	defaultSlug = "task"
)

// GenerateID derives the deterministic task_id for a description.
func GenerateID(description string) string {
	normalized := Normalize(description)

	words := strings.Fields(normalized)
	if len(words) > slugWords {
		words = words[:slugWords]
	}
	slug := strings.Join(words, "_")
	if slug == "" {
		slug = defaultSlug
	}

	sum := sha256.Sum256([]byte(normalized))
	return slug + "_" + hex.EncodeToString(sum[:])[:hashDigits]
}

// ValidID reports whether id has the {slug}_{12 hex digits} shape produced
// by GenerateID.
func ValidID(id string) bool {
	sep := strings.LastIndexByte(id, '_')
	if sep <= 0 || len(id)-sep-1 != hashDigits {
		return false
	}
	for _, r := range id[:sep] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	for _, r := range id[sep+1:] {
		if !(r >= 'a' && r <= 'f' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Normalize reduces a description to the content that takes part in its
// identity. The passes run in a fixed order:
//
//  1. code fences: a line opening or closing a ``` block is dropped along
//     with its info string; the fenced lines themselves are kept
//  2. header markers: every run of '#' and the whitespace after it is dropped
//  3. links: [label](target) becomes label
//  4. folding: each whitespace run becomes one space, everything except ASCII
//     letters, digits and spaces is dropped, letters are lowercased
//
// Emphasis and code markers ('*', '_', '`') fall out in the folding pass.
// A whitespace run is folded before neighbouring punctuation is removed, so
// "a - b" normalizes to "a  b" and differs from "a b".
func Normalize(description string) string {
	text := stripFences(description)
	text = stripHeaderMarkers(text)
	text = stripLinks(text)
	return strings.TrimSpace(fold(text))
}

func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func stripHeaderMarkers(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			b.WriteRune(runes[i])
			continue
		}
		for i+1 < len(runes) && runes[i+1] == '#' {
			i++
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
	}
	return b.String()
}

func stripLinks(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '[' {
			if label, end, ok := scanLink(runes, i); ok {
				b.WriteString(string(label))
				i = end
				continue
			}
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

// scanLink matches [label](target) at runes[start]. label and target are
// non-empty and may not contain ']' and ')' respectively. It returns the
// label and the index of the closing ')'.
func scanLink(runes []rune, start int) ([]rune, int, bool) {
	i := start + 1
	labelStart := i
	for i < len(runes) && runes[i] != ']' {
		i++
	}
	if i >= len(runes) || i == labelStart {
		return nil, 0, false
	}
	label := runes[labelStart:i]

	i++
	if i >= len(runes) || runes[i] != '(' {
		return nil, 0, false
	}
	i++
	targetStart := i
	for i < len(runes) && runes[i] != ')' {
		i++
	}
	if i >= len(runes) || i == targetStart {
		return nil, 0, false
	}
	return label, i, true
}

func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// ExtractDocID returns the id of the first [label](/doc/<id>) link, where id
// is made of lowercase hex digits and '-'. It returns "" when there is none.
func ExtractDocID(text string) string {
	const prefix = "/doc/"

	runes := []rune(text)
	for i := range runes {
		if runes[i] != '[' {
			continue
		}
		_, end, ok := scanLink(runes, i)
		if !ok {
			continue
		}
		// target sits between the '(' and end
		open := i + 1
		for runes[open] != ']' {
			open++
		}
		target := string(runes[open+2 : end])
		if !strings.HasPrefix(target, prefix) {
			continue
		}
		id := target[len(prefix):]
		if id != "" && isDocID(id) {
			return id
		}
	}
	return ""
}

func isDocID(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'f' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}
