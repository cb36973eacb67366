// Package report renders suite results for terminals.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/polytest/pkg/result"
)

// Status glyphs — convey meaning without relying on color alone.
const (
	GlyphPassed    = "✓"
	GlyphFailed    = "✗"
	GlyphErrored   = "!"
	GlyphSkipped   = "⏭"
	GlyphCancelled = "∅"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	erroredStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	cancelledStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	skippedStyle = lipgloss.NewStyle().
			Faint(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// glyph returns the marker and style for a status.
func glyph(status result.Status) (string, lipgloss.Style) {
	switch status {
	case result.StatusPassed:
		return GlyphPassed, passedStyle
	case result.StatusFailed:
		return GlyphFailed, failedStyle
	case result.StatusErrored:
		return GlyphErrored, erroredStyle
	case result.StatusCancelled:
		return GlyphCancelled, cancelledStyle
	default:
		return GlyphSkipped, skippedStyle
	}
}

// Render writes a human summary of a suite result. Non-verbose output
// lists one line per run; verbose adds the step tree and the failure
// details underneath each non-passing run.
func Render(w io.Writer, sr *result.SuiteResult, verbose bool) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("suite %s", sr.Suite)))

	for _, run := range sr.Runs {
		mark, style := glyph(run.Status)
		fmt.Fprintf(w, "  %s %s %s\n",
			style.Render(mark),
			run.Name(),
			detailStyle.Render(run.Elapsed.Round(time.Millisecond).String()))

		if verbose || (run.Status != result.StatusPassed && run.Status != result.StatusSkipped) {
			renderSteps(w, "setup", run.Setup, verbose)
			renderSteps(w, "", run.Steps, verbose)
			renderSteps(w, "teardown", run.Teardown, verbose)
		}
	}

	fmt.Fprintln(w, summaryLine(sr.Summary))
}

func renderSteps(w io.Writer, phase string, steps []result.StepResult, verbose bool) {
	for _, st := range steps {
		if !verbose && st.Status == result.StatusPassed {
			continue
		}
		mark, style := glyph(st.Status)
		label := st.Name
		if phase != "" {
			label = phase + ": " + label
		}
		fmt.Fprintf(w, "      %s %s\n", style.Render(mark), label)

		if st.Error != "" {
			fmt.Fprintf(w, "        %s\n", detailStyle.Render(st.Error))
		}
		for _, f := range st.Failures {
			fmt.Fprintf(w, "        %s\n", detailStyle.Render(f.String()))
		}
	}
}

// summaryLine renders the aggregate counters, coloring only the buckets
// that are populated.
func summaryLine(s result.Summary) string {
	parts := []string{
		passedStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
	}
	if s.Failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Errored > 0 {
		parts = append(parts, erroredStyle.Render(fmt.Sprintf("%d errored", s.Errored)))
	}
	if s.Cancelled > 0 {
		parts = append(parts, cancelledStyle.Render(fmt.Sprintf("%d cancelled", s.Cancelled)))
	}
	if s.Skipped > 0 {
		parts = append(parts, skippedStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	return fmt.Sprintf("%s (%d runs)", strings.Join(parts, ", "), s.Total)
}
