package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"github.com/nielsmadan/agentic-coding/internal/history"
	"github.com/stretchr/testify/assert"
)

func reportWithSignals() *behavioral.Report {
	r := behavioral.EmptyReport(14)
	r.Meta.TotalErrors = 15
	r.ErrorSummary.ByCategory[behavioral.CategoryCommandFailed] = behavioral.CategorySummary{Count: 3, Samples: []string{"Exit code 1"}}
	r.ErrorSummary.ByCategory[behavioral.CategoryPermissionDenied] = behavioral.CategorySummary{Count: 5, Samples: []string{"denied"}}
	r.RetryLoops.Total = 3
	r.RetryLoops.ByTool["Bash"] = 7
	r.MisbehaviorPatterns = []behavioral.PatternSummary{{Pattern: behavioral.PatternGitWrite, Count: 2, Samples: []string{"git push"}}}
	return r
}

func TestWriteSummaryTable(t *testing.T) {
	var buf bytes.Buffer
	WriteSummaryTable(&buf, reportWithSignals())
	out := buf.String()

	for _, want := range []string{"Signal", "Sample", "permission_denied", "command_failed", "Exit code 1", "retry loop", "Bash", "git_write_attempt", "git push"} {
		assert.Contains(t, out, want)
	}
	// Categories are ordered by count
	assert.Less(t, strings.Index(out, "permission_denied"), strings.Index(out, "command_failed"))
	assert.NotContains(t, out, "(no signals)")
}

func TestWriteSummaryTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteSummaryTable(&buf, behavioral.EmptyReport(14))
	assert.Contains(t, buf.String(), "(no signals)")

	buf.Reset()
	WriteSummaryTable(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestWriteSummaryTableTrimsLongSamples(t *testing.T) {
	r := behavioral.EmptyReport(14)
	long := strings.Repeat("x", 150)
	r.ErrorSummary.ByCategory[behavioral.CategoryInterrupted] = behavioral.CategorySummary{Count: 1, Samples: []string{long}}

	var buf bytes.Buffer
	WriteSummaryTable(&buf, r)
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), strings.Repeat("x", sampleWidth))
}

func TestSampleWidthFor(t *testing.T) {
	tests := []struct {
		termWidth int
		want      int
	}{
		{0, sampleWidth},
		{-1, sampleWidth},
		{200, sampleWidth},
		{100, 55},
		{50, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampleWidthFor(tt.termWidth), "width %d", tt.termWidth)
	}
}

func TestWriteRunsTable(t *testing.T) {
	finished := time.Date(2026, 4, 1, 9, 5, 0, 0, time.UTC)
	runs := []*history.Run{
		{ID: "1a2b3c4d-0000-0000-0000-000000000000", StartedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), FinishedAt: &finished, Days: 14, SessionsScanned: 12, TotalErrors: 40, RetryLoops: 3},
		{ID: "ffffeeee-0000-0000-0000-000000000000", StartedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC), Days: 7, Project: "juggler"},
	}

	var buf bytes.Buffer
	WriteRunsTable(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "1a2b3c4d")
	assert.NotContains(t, out, "1a2b3c4d-0000")
	assert.Contains(t, out, "(all)")
	assert.Contains(t, out, "juggler")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "running")

	buf.Reset()
	WriteRunsTable(&buf, nil)
	assert.Contains(t, buf.String(), "(no runs recorded)")
}

func TestWriteSessionHistoryTable(t *testing.T) {
	records := []*history.SessionRecord{
		{RunID: "1a2b3c4d-0000", SessionID: "s1", ToolCalls: 20, Errors: 5, ErrorRate: 0.25, RetryLoops: 2},
	}

	var buf bytes.Buffer
	WriteSessionHistoryTable(&buf, records)
	out := buf.String()
	assert.Contains(t, out, "1a2b3c4d")
	assert.Contains(t, out, "25.0%")

	buf.Reset()
	WriteSessionHistoryTable(&buf, nil)
	assert.Contains(t, buf.String(), "(not recorded)")
}

func TestFormatDelta(t *testing.T) {
	prev := &history.Run{ID: "1a2b3c4d-aaaa", StartedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.Local), TotalErrors: 12, RetryLoops: 4}
	r := behavioral.EmptyReport(14)
	r.Meta.TotalErrors = 15
	r.RetryLoops.Total = 3

	assert.Equal(t,
		"Since run 1a2b3c4d (2026-04-01 09:00): errors +3 (12 -> 15), retry loops -1 (4 -> 3)",
		FormatDelta(prev, r))
	assert.Empty(t, FormatDelta(nil, r))
	assert.Empty(t, FormatDelta(prev, nil))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "12345678", ShortID("123456789"))
}
