// Package behavioral extracts operational failure signals from Claude Code
// session JSONL files and aggregates them into a ranked report.
//
// The package is organised around a single forward pass per session:
//   - Record decodes one JSONL line into a normalized view (role, entry
//     kind, content blocks)
//   - the session scanner walks the records of one session, classifying
//     tool calls and tool results with the pattern matchers
//   - the retry-loop detector runs once per session over the recorded tool
//     sequence and Bash history
//   - Aggregator folds any number of SessionStats into one Report
//
// Sessions are independent, so Runner scans them with a bounded worker pool
// and folds results into a shared Aggregator.
//
// Example usage:
//
//	sources, err := behavioral.NewDiscoverer("~/.claude/projects").
//	    Discover(behavioral.FilterCriteria{Days: 14})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	agg, _, err := behavioral.NewRunner(4, nil).Run(ctx, sources)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report := agg.Report(14)
package behavioral
