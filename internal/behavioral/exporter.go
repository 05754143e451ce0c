package behavioral

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nielsmadan/agentic-coding/internal/filelock"
)

// Supported report formats
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// StdoutPath selects standard output as the report destination
const StdoutPath = "-"

// Exporter renders a Report
type Exporter interface {
	Export(report *Report) (string, error)
}

// ParseFormat normalizes a format name. "md" is accepted for markdown.
func ParseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case "md", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (supported: json, markdown, html)", format)
	}
}

// NewExporter returns the exporter for a format name
func NewExporter(format string) (Exporter, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatMarkdown:
		return &MarkdownExporter{IncludeTimestamp: true}, nil
	case FormatHTML:
		return &HTMLExporter{}, nil
	default:
		return &JSONExporter{Pretty: true}, nil
	}
}

// JSONExporter exports the report as JSON
type JSONExporter struct {
	Pretty bool // Enable pretty printing with indentation
}

// Export converts the report to a JSON string
func (je *JSONExporter) Export(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if je.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return buf.String(), nil
}

// MarkdownExporter exports the report as Markdown
type MarkdownExporter struct {
	IncludeTimestamp bool             // Include generation timestamp in header
	Now              func() time.Time // Defaults to time.Now

	escapeHTML bool
}

// Export converts the report to a Markdown string
func (me *MarkdownExporter) Export(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	cell := me.cell
	var sb strings.Builder

	sb.WriteString("# Session Log Review\n\n")
	if me.IncludeTimestamp {
		now := time.Now
		if me.Now != nil {
			now = me.Now
		}
		sb.WriteString(fmt.Sprintf("**Generated**: %s\n\n", now().Format("2006-01-02 15:04:05")))
	}

	m := report.Meta
	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Lookback**: %d days\n", m.Days))
	sb.WriteString(fmt.Sprintf("- **Date Range**: %s\n", m.DateRange))
	sb.WriteString(fmt.Sprintf("- **Sessions Scanned**: %d\n", m.SessionsScanned))
	sb.WriteString(fmt.Sprintf("- **Projects**: %d\n", m.Projects))
	sb.WriteString(fmt.Sprintf("- **Tool Calls**: %d\n", m.TotalToolCalls))
	sb.WriteString(fmt.Sprintf("- **Errors**: %d\n", m.TotalErrors))
	sb.WriteString(fmt.Sprintf("- **Retry Loops**: %d\n", report.RetryLoops.Total))
	sb.WriteString("\n")

	if len(report.ErrorSummary.ByCategory) > 0 {
		sb.WriteString("## Errors by Category\n\n")
		sb.WriteString("| Category | Count | Sample |\n")
		sb.WriteString("|----------|-------|--------|\n")
		for _, name := range report.SortedCategories() {
			c := report.ErrorSummary.ByCategory[name]
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", name, c.Count, cell(firstSample(c.Samples))))
		}
		sb.WriteString("\n")
	}

	if len(report.TopFailingCommands) > 0 {
		sb.WriteString("## Top Failing Commands\n\n")
		sb.WriteString("| Command | Count | Sample Error |\n")
		sb.WriteString("|---------|-------|--------------|\n")
		for _, fc := range report.TopFailingCommands {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", cell(fc.Command), fc.Count, cell(fc.SampleError)))
		}
		sb.WriteString("\n")
	}

	if len(report.PermissionDeniedCommands) > 0 {
		sb.WriteString("## Permission Denials\n\n")
		sb.WriteString("| Command | Count | Expected |\n")
		sb.WriteString("|---------|-------|----------|\n")
		for _, dc := range report.PermissionDeniedCommands {
			expected := "No"
			if dc.Expected {
				expected = "Yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", cell(dc.Command), dc.Count, expected))
		}
		sb.WriteString("\n")
	}

	if report.RetryLoops.Total > 0 {
		sb.WriteString("## Retry Loops\n\n")
		sb.WriteString("| Tool | Repeated Calls |\n")
		sb.WriteString("|------|----------------|\n")
		for _, tool := range report.SortedRetryTools() {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", cell(tool), report.RetryLoops.ByTool[tool]))
		}
		sb.WriteString("\n")

		if len(report.RetryLoops.WorstSessions) > 0 {
			sb.WriteString("| Session | Project | Retry Loops |\n")
			sb.WriteString("|---------|---------|-------------|\n")
			for _, s := range report.RetryLoops.WorstSessions {
				sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", s.SessionID, cell(s.Project), s.RetryLoops))
			}
			sb.WriteString("\n")
		}
	}

	if len(report.ProblematicSessions) > 0 {
		sb.WriteString("## Problematic Sessions\n\n")
		sb.WriteString("| Session | Project | Error Rate | Errors | Tool Calls |\n")
		sb.WriteString("|---------|---------|------------|--------|------------|\n")
		for _, s := range report.ProblematicSessions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.1f%% | %d | %d |\n",
				s.SessionID,
				cell(s.Project),
				s.ErrorRate*100,
				s.Errors,
				s.ToolCalls))
		}
		sb.WriteString("\n")
	}

	if len(report.MisbehaviorPatterns) > 0 {
		sb.WriteString("## Misbehavior Patterns\n\n")
		sb.WriteString("| Pattern | Count | Sample |\n")
		sb.WriteString("|---------|-------|--------|\n")
		for _, p := range report.MisbehaviorPatterns {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", p.Pattern, p.Count, cell(firstSample(p.Samples))))
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// cell makes text safe inside a Markdown table cell
func (me *MarkdownExporter) cell(s string) string {
	if me.escapeHTML {
		s = html.EscapeString(s)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func firstSample(samples []string) string {
	if len(samples) == 0 {
		return ""
	}
	return samples[0]
}

// HTMLExporter renders the Markdown report to a standalone HTML page
type HTMLExporter struct {
	Now func() time.Time
}

// Export converts the report to an HTML string
func (he *HTMLExporter) Export(report *Report) (string, error) {
	md := &MarkdownExporter{IncludeTimestamp: true, Now: he.Now, escapeHTML: true}
	source, err := md.Export(report)
	if err != nil {
		return "", err
	}

	converter := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := converter.Convert([]byte(source), &body); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>Session Log Review</title>\n</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}

// ExportToString exports the report in the given format
func ExportToString(report *Report, format string) (string, error) {
	exporter, err := NewExporter(format)
	if err != nil {
		return "", err
	}
	content, err := exporter.Export(report)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	return content, nil
}

// ExportToFile writes the report to path under an exclusive file lock.
// StdoutPath writes to stdout instead.
func ExportToFile(report *Report, path string, format string) error {
	return ExportTo(report, path, format, os.Stdout)
}

// ExportTo is ExportToFile with an explicit writer for StdoutPath
func ExportTo(report *Report, path string, format string, stdout io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	content, err := ExportToString(report, format)
	if err != nil {
		return err
	}

	if path == StdoutPath {
		if _, err := io.WriteString(stdout, content); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	if err := filelock.LockAndWrite(path, []byte(content)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
