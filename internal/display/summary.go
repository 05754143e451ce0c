package display

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"github.com/nielsmadan/agentic-coding/internal/history"
)

// sampleWidth bounds the sample column so tables fit a normal terminal
const sampleWidth = 60

// summaryFixedWidth is roughly what the borders and the other three
// summary columns take up
const summaryFixedWidth = 45

// sampleWidthFor fits the sample column into a terminal of the given width.
// A width <= 0 means unknown.
func sampleWidthFor(termWidth int) int {
	if termWidth <= 0 {
		return sampleWidth
	}
	w := termWidth - summaryFixedWidth
	if w > sampleWidth {
		return sampleWidth
	}
	if w < 20 {
		return 20
	}
	return w
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

// WriteSummaryTable renders error categories, retry tools and misbehavior
// patterns of a report as one table
func WriteSummaryTable(w io.Writer, report *behavioral.Report) {
	WriteSummaryTableWidth(w, report, 0)
}

// WriteSummaryTableWidth is WriteSummaryTable for a terminal termWidth
// columns wide
func WriteSummaryTableWidth(w io.Writer, report *behavioral.Report, termWidth int) {
	if report == nil {
		return
	}

	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: sampleWidthFor(termWidth), WidthMaxEnforcer: text.Trim},
	})
	tw.AppendHeader(table.Row{"Signal", "Name", "Count", "Sample"})

	rows := 0
	for _, name := range report.SortedCategories() {
		c := report.ErrorSummary.ByCategory[name]
		tw.AppendRow(table.Row{"error", name, c.Count, firstOf(c.Samples)})
		rows++
	}
	for _, tool := range report.SortedRetryTools() {
		tw.AppendRow(table.Row{"retry loop", tool, report.RetryLoops.ByTool[tool], "-"})
		rows++
	}
	for _, p := range report.MisbehaviorPatterns {
		tw.AppendRow(table.Row{"misbehavior", p.Pattern, p.Count, firstOf(p.Samples)})
		rows++
	}

	if rows == 0 {
		tw.AppendRow(table.Row{"-", "(no signals)", 0, "-"})
	}

	tw.Render()
}

// WriteRunsTable renders recorded runs, newest first
func WriteRunsTable(w io.Writer, runs []*history.Run) {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	tw.AppendHeader(table.Row{"Run ID", "Started", "Project", "Days", "Sessions", "Errors", "Retry Loops", "Status"})

	for _, run := range runs {
		project := run.Project
		if project == "" {
			project = "(all)"
		}
		status := "running"
		if run.Finished() {
			status = "done"
		}
		tw.AppendRow(table.Row{
			ShortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			project,
			run.Days,
			run.SessionsScanned,
			run.TotalErrors,
			run.RetryLoops,
			status,
		})
	}

	if len(runs) == 0 {
		tw.AppendRow(table.Row{"-", "(no runs recorded)", "-", 0, 0, 0, 0, "-"})
	}

	tw.Render()
}

// WriteSessionHistoryTable renders how one session scored across runs
func WriteSessionHistoryTable(w io.Writer, records []*history.SessionRecord) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Run ID", "Recorded", "Tool Calls", "Errors", "Error Rate", "Retry Loops", "Misbehaviors", "Denials"})

	for _, rec := range records {
		tw.AppendRow(table.Row{
			ShortID(rec.RunID),
			rec.RecordedAt.Local().Format("2006-01-02 15:04"),
			rec.ToolCalls,
			rec.Errors,
			fmt.Sprintf("%.1f%%", rec.ErrorRate*100),
			rec.RetryLoops,
			rec.Misbehaviors,
			rec.PermissionDenials,
		})
	}

	if len(records) == 0 {
		tw.AppendRow(table.Row{"-", "(not recorded)", 0, 0, "-", 0, 0, 0})
	}

	tw.Render()
}

// FormatDelta compares a report with the previous recorded run.
// Format: "Since run 1a2b3c4d (2026-04-01 09:00): errors +3 (12 -> 15), retry loops -1 (4 -> 3)"
func FormatDelta(prev *history.Run, report *behavioral.Report) string {
	if prev == nil || report == nil {
		return ""
	}
	return fmt.Sprintf("Since run %s (%s): errors %+d (%d -> %d), retry loops %+d (%d -> %d)",
		ShortID(prev.ID),
		prev.StartedAt.Local().Format("2006-01-02 15:04"),
		report.Meta.TotalErrors-prev.TotalErrors, prev.TotalErrors, report.Meta.TotalErrors,
		report.RetryLoops.Total-prev.RetryLoops, prev.RetryLoops, report.RetryLoops.Total,
	)
}

// ShortID returns the first eight characters of a run id
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func firstOf(samples []string) string {
	if len(samples) == 0 {
		return "-"
	}
	return samples[0]
}
