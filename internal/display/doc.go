// Package display provides terminal output for review-logs: warnings, the
// end-of-scan summary table and the run history listing.
//
// # Warning Messages
//
// Display warnings with optional components:
//
//	warning := display.Warning{
//	    Title:      "Skipped Sessions",
//	    Message:    "2 session files could not be read",
//	    Files:      skippedPaths,
//	    Suggestion: "Check the file permissions under ~/.claude/projects",
//	}
//	warning.Display(os.Stderr)
//
// Or use the convenience factory:
//
//	display.WarnSkippedSessions(stats.SkippedPaths).Display(os.Stderr)
//
// # Tables
//
// Summary and history tables are rendered with go-pretty:
//
//	display.WriteSummaryTable(os.Stderr, report)
//	display.WriteRunsTable(os.Stdout, runs)
//
// All functions accept io.Writer interfaces for testability.
package display
