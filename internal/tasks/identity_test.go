package tasks

import (
	"strings"
	"testing"
)

func TestGenerateIDFormattingInvariant(t *testing.T) {
	a := GenerateID("# Foo\nbar")
	b := GenerateID("#  Foo \n\nbar")
	if a != b {
		t.Errorf("Expected same id for formatting variants, got %q and %q", a, b)
	}

	c := GenerateID("# Foo\nbaz")
	if a == c {
		t.Errorf("Expected different ids for different content, both %q", a)
	}
}

func TestGenerateIDFormat(t *testing.T) {
	id := GenerateID("## Write the **weekly** report for [Ironman](/doc/ab12-cd)")
	if !strings.HasPrefix(id, "write_the_weekly_report_for_") {
		t.Errorf("Unexpected slug in %q", id)
	}
	if !ValidID(id) {
		t.Errorf("Expected generated id %q to be valid", id)
	}
}

func TestGenerateIDDefaultSlug(t *testing.T) {
	id := GenerateID("### ---")
	if !strings.HasPrefix(id, "task_") {
		t.Errorf("Expected default slug, got %q", id)
	}
	if len(id) != len("task_")+12 {
		t.Errorf("Expected 12 hex digit hash, got %q", id)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"header", "# Foo\nbar", "foo bar"},
		{"header spacing", "#  Foo \n\nbar", "foo bar"},
		{"nested header", "### Deep", "deep"},
		{"bold", "make **this** bold", "make this bold"},
		{"italic", "an *italic* word", "an italic word"},
		{"inline code", "run `go test` now", "run go test now"},
		{"link", "see [the doc](https://example.com/x) here", "see the doc here"},
		{"doc link", "[Plan](/doc/abc-123)", "plan"},
		{"empty link label", "[](x) y", "x y"},
		{"fence", "# Task\n```go\nfmt.Println()\n```\n", "task fmtprintln"},
		{"punctuation", "Hello, World!", "hello world"},
		{"dash keeps spaces", "a - b", "a  b"},
		{"unicode dropped", "café ok", "caf ok"},
		{"tabs", "a\t\tb", "a b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeFenceContentAffectsID(t *testing.T) {
	a := GenerateID("# Fix\n```\nx := 1\n```")
	b := GenerateID("# Fix\n```\nx := 2\n```")
	if a == b {
		t.Error("Expected code block contents to take part in the id")
	}

	c := GenerateID("# Fix\n```python\nx := 1\n```")
	if a != c {
		t.Errorf("Expected fence info string to be ignored, got %q and %q", a, c)
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"foo_bar_0123456789ab", true},
		{"task_abcdefabcdef", true},
		{"foo_0123456789a", false},
		{"foo_0123456789abc", false},
		{"Foo_0123456789ab", false},
		{"foo_0123456789AB", false},
		{"_0123456789ab", false},
		{"0123456789ab", false},
		{"foo-bar_0123456789ab", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestExtractDocID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single", "see [doc](/doc/abc-123)", "abc-123"},
		{"first wins", "[a](/doc/aaa) and [b](/doc/bbb)", "aaa"},
		{"skips other links", "[site](https://x.io) then [doc](/doc/f00d)", "f00d"},
		{"uppercase rejected", "[doc](/doc/ABC)", ""},
		{"empty id", "[doc](/doc/)", ""},
		{"no link", "plain text /doc/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractDocID(tt.in); got != tt.want {
				t.Errorf("ExtractDocID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
