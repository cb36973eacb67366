package pattern

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/polytest/pkg/schema"
)

func mustCompile(t *testing.T, entries []schema.PatternEntry) []*Pattern {
	t.Helper()
	patterns, err := Compile(entries)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return patterns
}

func TestCompileRejectsBadRegex(t *testing.T) {
	_, err := Compile([]schema.PatternEntry{{Regex: "(unclosed"}})
	if err == nil {
		t.Fatal("expected compile error for malformed regex")
	}
	if !strings.Contains(err.Error(), "pattern[0]") {
		t.Errorf("error should name the offending entry, got %q", err)
	}
}

func TestCompileRejectsEmptyEntry(t *testing.T) {
	if _, err := Compile([]schema.PatternEntry{{}}); err == nil {
		t.Fatal("expected compile error for entry with no kind")
	}
}

func TestMatchOrdering(t *testing.T) {
	tests := []struct {
		name    string
		entries []schema.PatternEntry
		text    string
		wantOK  bool
	}{
		{
			name:    "in order passes",
			entries: []schema.PatternEntry{{Literal: "A"}, {Literal: "B"}},
			text:    "A\nB\n",
			wantOK:  true,
		},
		{
			name:    "out of order fails",
			entries: []schema.PatternEntry{{Literal: "A"}, {Literal: "B"}},
			text:    "B\nA\n",
			wantOK:  false,
		},
		{
			name:    "skipped lines allowed",
			entries: []schema.PatternEntry{{Literal: "A"}, {Literal: "B"}},
			text:    "A\nnoise\nnoise\nB\n",
			wantOK:  true,
		},
		{
			name:    "substring containment by default",
			entries: []schema.PatternEntry{{Literal: "hello"}},
			text:    "prefix hello suffix\n",
			wantOK:  true,
		},
		{
			name:    "line requires full equality",
			entries: []schema.PatternEntry{{Literal: "hello", Line: true}},
			text:    "prefix hello suffix\n",
			wantOK:  false,
		},
		{
			name:    "line full equality passes",
			entries: []schema.PatternEntry{{Literal: "hello", Line: true}},
			text:    "hello\n",
			wantOK:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(mustCompile(t, tt.entries), tt.text, nil)
			if res.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (failures: %v)", res.OK, tt.wantOK, res.Failures)
			}
		})
	}
}

func TestMatchAdjacent(t *testing.T) {
	entries := []schema.PatternEntry{
		{Literal: "A"},
		{Literal: "B", Adjacent: true},
	}
	patterns := mustCompile(t, entries)

	if res := Match(patterns, "A\nB\n", nil); !res.OK {
		t.Errorf("adjacent lines should match: %v", res.Failures)
	}
	if res := Match(patterns, "A\nnoise\nB\n", nil); res.OK {
		t.Error("intervening line should fail an adjacent pattern")
	}
}

func TestMatchWildcard(t *testing.T) {
	// A wildcard always succeeds, binds nothing, and does not advance the
	// anchor, so surrounding patterns are unaffected.
	entries := []schema.PatternEntry{
		{Literal: "A"},
		{Wildcard: true},
		{Literal: "B", Adjacent: true},
	}
	res := Match(mustCompile(t, entries), "A\nB\n", nil)
	if !res.OK {
		t.Errorf("wildcard must not consume lines: %v", res.Failures)
	}
	if len(res.Captures) != 0 {
		t.Errorf("wildcard bound captures: %v", res.Captures)
	}
}

func TestMatchUnordered(t *testing.T) {
	entries := []schema.PatternEntry{
		{Unordered: []schema.PatternEntry{
			{Literal: "alpha"},
			{Literal: "beta"},
			{Literal: "gamma"},
		}},
	}
	patterns := mustCompile(t, entries)

	if res := Match(patterns, "gamma\nalpha\nbeta\n", nil); !res.OK {
		t.Errorf("unordered block should match any permutation: %v", res.Failures)
	}
	res := Match(patterns, "gamma\nalpha\n", nil)
	if res.OK {
		t.Error("missing member should fail the block")
	}
	if len(res.Failures) != 1 {
		t.Fatalf("want 1 failure, got %d: %v", len(res.Failures), res.Failures)
	}
	if !strings.Contains(res.Failures[0].Pattern, "beta") {
		t.Errorf("failure should name the missing member, got %v", res.Failures[0])
	}
}

func TestMatchUnorderedConsumesLines(t *testing.T) {
	// Each block member consumes its line, so two members cannot both
	// claim a single occurrence.
	entries := []schema.PatternEntry{
		{Unordered: []schema.PatternEntry{
			{Literal: "dup"},
			{Literal: "dup"},
		}},
	}
	patterns := mustCompile(t, entries)

	if res := Match(patterns, "dup\n", nil); res.OK {
		t.Error("one line must not satisfy two members")
	}
	if res := Match(patterns, "dup\ndup\n", nil); !res.OK {
		t.Errorf("two lines should satisfy two members: %v", res.Failures)
	}
}

func TestMatchOptional(t *testing.T) {
	entries := []schema.PatternEntry{
		{Literal: "A"},
		{Regex: `version (?P<ver>\d+)`, Optional: true},
		{Literal: "B"},
	}
	patterns := mustCompile(t, entries)

	// Missed optional: no failure, no binding.
	res := Match(patterns, "A\nB\n", nil)
	if !res.OK {
		t.Errorf("missed optional must not fail: %v", res.Failures)
	}
	if _, ok := res.Captures["ver"]; ok {
		t.Error("missed optional must not bind captures")
	}

	// Matched optional: captures do bind.
	res = Match(patterns, "A\nversion 7\nB\n", nil)
	if !res.OK {
		t.Errorf("matched optional failed: %v", res.Failures)
	}
	if got := res.Captures["ver"]; got != "7" {
		t.Errorf("ver = %q, want %q", got, "7")
	}
}

func TestMatchCaptures(t *testing.T) {
	entries := []schema.PatternEntry{
		{Regex: `id=(?P<id>\w+) name=(?P<name>\w+)`},
	}
	res := Match(mustCompile(t, entries), "id=abc123 name=widget\n", nil)
	if !res.OK {
		t.Fatalf("match failed: %v", res.Failures)
	}
	if res.Captures["id"] != "abc123" || res.Captures["name"] != "widget" {
		t.Errorf("captures = %v", res.Captures)
	}
}

func TestMatchInconsistentCapture(t *testing.T) {
	entries := []schema.PatternEntry{
		{Regex: `created (?P<id>\d+)`},
		{Regex: `deleted (?P<id>\d+)`},
	}
	patterns := mustCompile(t, entries)

	// Same value twice: consistent.
	res := Match(patterns, "created 42\ndeleted 42\n", nil)
	if !res.OK {
		t.Errorf("consistent rebind failed: %v", res.Failures)
	}

	// Different values: consistency violation within one evaluation.
	res = Match(patterns, "created 42\ndeleted 43\n", nil)
	if res.OK {
		t.Fatal("inconsistent rebind must fail")
	}
	found := false
	for _, f := range res.Failures {
		if f.Kind == FailureInconsistentCapture {
			found = true
		}
	}
	if !found {
		t.Errorf("want FailureInconsistentCapture, got %v", res.Failures)
	}
}

func TestMatchInconsistentWithPriorBinding(t *testing.T) {
	entries := []schema.PatternEntry{{Regex: `got (?P<id>\d+)`}}
	patterns := mustCompile(t, entries)

	res := Match(patterns, "got 99\n", map[string]string{"id": "42"})
	if res.OK {
		t.Fatal("conflict with earlier-step binding must fail")
	}
	if res.Failures[0].Kind != FailureInconsistentCapture {
		t.Errorf("kind = %v, want %v", res.Failures[0].Kind, FailureInconsistentCapture)
	}
}

func TestMatchInconsistentOptionalStillFails(t *testing.T) {
	// An optional pattern that matches a line but violates consistency is
	// a real failure, not a miss.
	entries := []schema.PatternEntry{{Regex: `got (?P<id>\d+)`, Optional: true}}
	res := Match(mustCompile(t, entries), "got 99\n", map[string]string{"id": "42"})
	if res.OK {
		t.Fatal("consistency violation on optional pattern must fail")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"a\nb\n", 2},
		{"a\nb", 2},
		{"a\r\nb\r\n", 2},
		{"", 0},
		{"\n", 1},
	}
	for _, tt := range tests {
		if got := len(splitLines(tt.in)); got != tt.want {
			t.Errorf("splitLines(%q) = %d lines, want %d", tt.in, got, tt.want)
		}
	}
}
