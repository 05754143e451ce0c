package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/nielsmadan/agentic-coding/internal/behavioral"
)

// colorScheme defines consistent colors for different metric types.
// Green: clean metrics
// Red: error metrics
// Yellow: warning metrics
// Cyan: labels and identifiers
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

// newColorScheme creates the standard color scheme for metrics.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
}

// countColor picks green for zero counts and the given color otherwise
func (s *colorScheme) countColor(n int, nonZero *color.Color) *color.Color {
	if n == 0 {
		return s.success
	}
	return nonZero
}

// formatColorizedMetric formats a single metric with colorized label and value.
// Format: "label: value"
func formatColorizedMetric(label string, value interface{}, scheme *colorScheme) string {
	labelColored := scheme.label.Sprint(label)
	valueColored := scheme.value.Sprintf("%v", value)
	return fmt.Sprintf("%s: %s", labelColored, valueColored)
}

// FormatSessionMetrics formats per-session signal counts for debug output.
// Returns empty string when the session has no tool calls.
// Format: "tools: N, errors: N, retries: N, misbehaviors: N"
// Colors are automatically disabled when output is not a TTY via fatih/color's built-in detection.
func FormatSessionMetrics(s *behavioral.SessionStats) string {
	if s == nil || s.TotalToolCalls == 0 {
		return ""
	}

	scheme := newColorScheme()
	parts := []string{formatColorizedMetric("tools", s.TotalToolCalls, scheme)}

	if s.TotalErrors > 0 {
		parts = append(parts, fmt.Sprintf("%s: %s",
			scheme.fail.Sprint("errors"), scheme.fail.Sprintf("%d", s.TotalErrors)))
	}
	if n := len(s.RetryLoops); n > 0 {
		parts = append(parts, fmt.Sprintf("%s: %s",
			scheme.warn.Sprint("retries"), scheme.warn.Sprintf("%d", n)))
	}
	if n := len(s.Misbehaviors); n > 0 {
		parts = append(parts, fmt.Sprintf("%s: %s",
			scheme.warn.Sprint("misbehaviors"), scheme.warn.Sprintf("%d", n)))
	}

	return strings.Join(parts, ", ")
}
