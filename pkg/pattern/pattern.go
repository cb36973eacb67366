// Package pattern compiles expected-output specifications into matchers
// and evaluates them against captured process output, line by line.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ormasoftchile/polytest/pkg/schema"
)

// Kind discriminates the closed set of pattern variants.
type Kind int

const (
	KindLiteral Kind = iota
	KindRegex
	KindWildcard
	KindBlock // unordered group
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindRegex:
		return "regex"
	case KindWildcard:
		return "wildcard"
	case KindBlock:
		return "unordered"
	default:
		return "unknown"
	}
}

// Pattern is one compiled expected-output rule. Regexes are compiled once
// at suite load; Compile rejects malformed expressions so matching never
// fails on syntax.
type Pattern struct {
	Kind     Kind
	Source   string // original literal/regex text, for reporting
	Line     bool   // literal must equal a full line
	Optional bool
	Adjacent bool

	re      *regexp.Regexp
	members []*Pattern // KindBlock
}

// Describe returns a short human-readable form used in results.
func (p *Pattern) Describe() string {
	switch p.Kind {
	case KindLiteral:
		return fmt.Sprintf("literal %q", p.Source)
	case KindRegex:
		return fmt.Sprintf("regex /%s/", p.Source)
	case KindWildcard:
		return "wildcard"
	case KindBlock:
		parts := make([]string, len(p.members))
		for i, m := range p.members {
			parts[i] = m.Describe()
		}
		return "unordered{" + strings.Join(parts, ", ") + "}"
	default:
		return "unknown"
	}
}

// Compile translates pattern entries into matchers. A malformed regex is
// an error here, at load time, not during a run.
func Compile(entries []schema.PatternEntry) ([]*Pattern, error) {
	patterns := make([]*Pattern, 0, len(entries))
	for i, entry := range entries {
		p, err := compileOne(entry)
		if err != nil {
			return nil, fmt.Errorf("pattern[%d]: %w", i, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func compileOne(entry schema.PatternEntry) (*Pattern, error) {
	p := &Pattern{
		Optional: entry.Optional,
		Adjacent: entry.Adjacent,
		Line:     entry.Line,
	}
	switch {
	case entry.Literal != "":
		p.Kind = KindLiteral
		p.Source = entry.Literal
	case entry.Regex != "":
		re, err := regexp.Compile(entry.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile regex %q: %w", entry.Regex, err)
		}
		p.Kind = KindRegex
		p.Source = entry.Regex
		p.re = re
	case entry.Wildcard:
		p.Kind = KindWildcard
	case len(entry.Unordered) > 0:
		members, err := Compile(entry.Unordered)
		if err != nil {
			return nil, err
		}
		p.Kind = KindBlock
		p.members = members
	default:
		return nil, fmt.Errorf("pattern entry declares no kind")
	}
	return p, nil
}

// FailureKind separates an ordinary mismatch from a capture-consistency
// violation, which callers must report as a distinct error kind.
type FailureKind string

const (
	FailureUnmatched           FailureKind = "unmatched"
	FailureInconsistentCapture FailureKind = "inconsistent_capture"
)

// Failure records one required pattern that the output did not satisfy.
type Failure struct {
	Pattern string      `json:"pattern"`
	Kind    FailureKind `json:"kind"`
	Detail  string      `json:"detail,omitempty"`
}

func (f Failure) String() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Pattern, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Pattern)
}

// Result is the outcome of evaluating a pattern list against one text.
type Result struct {
	OK       bool
	Matched  []string
	Failures []Failure
	// Captures holds variables newly bound by this evaluation, already
	// checked for consistency against the caller-supplied bindings.
	Captures map[string]string
}

// matcher carries the evaluation state for one Match call.
type matcher struct {
	lines    []string
	consumed []bool
	anchor   int // index of the first line the next ordered pattern may match

	bound    map[string]string // pre-existing bindings (read-only)
	captures map[string]string // new bindings from this evaluation
	result   *Result
}

// Match evaluates patterns against text. Lines are matched in order with
// an anchored scan: each pattern consumes lines starting where the
// previous match ended; skipped lines are allowed unless the pattern is
// marked adjacent. bound holds variables captured by earlier steps in the
// same run; a named group that rebinds one of them to a different value
// is a FailureInconsistentCapture.
func Match(patterns []*Pattern, text string, bound map[string]string) *Result {
	lines := splitLines(text)
	m := &matcher{
		lines:    lines,
		consumed: make([]bool, len(lines)),
		bound:    bound,
		captures: make(map[string]string),
		result:   &Result{Captures: make(map[string]string)},
	}

	for _, p := range patterns {
		m.matchOne(p)
	}

	m.result.Captures = m.captures
	m.result.OK = len(m.result.Failures) == 0
	return m.result
}

func (m *matcher) matchOne(p *Pattern) {
	switch p.Kind {
	case KindWildcard:
		// Always succeeds, binds nothing, consumes nothing.
		m.result.Matched = append(m.result.Matched, p.Describe())
	case KindBlock:
		m.matchBlock(p)
	default:
		m.matchOrdered(p)
	}
}

// matchOrdered scans forward from the anchor for a line satisfying p.
func (m *matcher) matchOrdered(p *Pattern) {
	limit := len(m.lines)
	if p.Adjacent {
		// Only the first unconsumed line at or after the anchor is a
		// candidate.
		if next := m.nextUnconsumed(m.anchor); next >= 0 {
			limit = next + 1
		} else {
			limit = m.anchor
		}
	}
	for i := m.anchor; i < limit; i++ {
		if m.consumed[i] {
			continue
		}
		caps, ok := p.matchLine(m.lines[i])
		if !ok {
			continue
		}
		if err := m.bindCaptures(p, caps); err != nil {
			m.fail(p, FailureInconsistentCapture, err.Error())
			return
		}
		m.consumed[i] = true
		m.anchor = i + 1
		m.result.Matched = append(m.result.Matched, p.Describe())
		return
	}

	if p.Optional {
		// A missed optional pattern fails nothing and binds nothing.
		return
	}
	m.fail(p, FailureUnmatched, fmt.Sprintf("no line from %d on matches", m.anchor))
}

// matchBlock resolves an unordered group: every member must match some
// remaining line at or after the anchor; each match removes its line from
// the candidate pool. The anchor does not advance, so ordered patterns
// after the block continue from the same position, skipping consumed
// lines.
func (m *matcher) matchBlock(block *Pattern) {
	matchedAll := true
	for _, member := range block.members {
		found := false
		for i := m.anchor; i < len(m.lines); i++ {
			if m.consumed[i] {
				continue
			}
			caps, ok := member.matchLine(m.lines[i])
			if !ok {
				continue
			}
			if err := m.bindCaptures(member, caps); err != nil {
				m.fail(member, FailureInconsistentCapture, err.Error())
				found = true // consistency failure, not a mismatch
				break
			}
			m.consumed[i] = true
			found = true
			m.result.Matched = append(m.result.Matched, member.Describe())
			break
		}
		if !found {
			if member.Optional {
				continue
			}
			m.fail(member, FailureUnmatched, "no remaining line matches")
			matchedAll = false
		}
	}
	if matchedAll {
		m.result.Matched = append(m.result.Matched, block.Describe())
	}
}

// matchLine tests p against a single line, returning any named-group
// captures.
func (p *Pattern) matchLine(line string) (map[string]string, bool) {
	switch p.Kind {
	case KindLiteral:
		if p.Line {
			return nil, line == p.Source
		}
		return nil, strings.Contains(line, p.Source)
	case KindRegex:
		sub := p.re.FindStringSubmatch(line)
		if sub == nil {
			return nil, false
		}
		caps := make(map[string]string)
		for i, name := range p.re.SubexpNames() {
			if name == "" || i >= len(sub) {
				continue
			}
			caps[name] = sub[i]
		}
		return caps, true
	case KindWildcard:
		return nil, true
	default:
		return nil, false
	}
}

// bindCaptures merges new named-group captures, enforcing cross-step
// consistency: a variable already bound (in a prior step or earlier in
// this evaluation) must capture the same value again.
func (m *matcher) bindCaptures(p *Pattern, caps map[string]string) error {
	for name, value := range caps {
		if prev, ok := m.bound[name]; ok && prev != value {
			return fmt.Errorf("variable %q already bound to %q, matched %q", name, prev, value)
		}
		if prev, ok := m.captures[name]; ok && prev != value {
			return fmt.Errorf("variable %q already bound to %q, matched %q", name, prev, value)
		}
	}
	for name, value := range caps {
		m.captures[name] = value
	}
	return nil
}

func (m *matcher) fail(p *Pattern, kind FailureKind, detail string) {
	m.result.Failures = append(m.result.Failures, Failure{
		Pattern: p.Describe(),
		Kind:    kind,
		Detail:  detail,
	})
}

func (m *matcher) nextUnconsumed(from int) int {
	for i := from; i < len(m.lines); i++ {
		if !m.consumed[i] {
			return i
		}
	}
	return -1
}

// splitLines normalizes line endings and splits text into lines, dropping
// a single trailing empty line so "a\nb\n" yields two candidates.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
