package behavioral

import (
	"fmt"
	"sort"
)

// Error categories reported under error_summary.by_category
const (
	CategoryPermissionDenied = "permission_denied"
	CategoryUserRejected     = "user_rejected"
	CategoryCommandFailed    = "command_failed"
	CategoryFileNotFound     = "file_not_found"
	CategoryInterrupted      = "interrupted"
	CategoryHookBlocked      = "hook_blocked"
)

// DateRangeUnknown is reported when no session modification times are known
const DateRangeUnknown = "unknown"

// Report is the aggregate over every scanned session
type Report struct {
	Meta                     ReportMeta         `json:"meta"`
	ErrorSummary             ErrorSummary       `json:"error_summary"`
	TopFailingCommands       []FailingCommand   `json:"top_failing_commands"`
	PermissionDeniedCommands []DeniedCommand    `json:"permission_denied_commands"`
	RetryLoops               RetrySummary       `json:"retry_loops"`
	ProblematicSessions      []SessionErrorRank `json:"problematic_sessions"`
	MisbehaviorPatterns      []PatternSummary   `json:"misbehavior_patterns"`
}

// ReportMeta describes the scanned dataset
type ReportMeta struct {
	Days            int      `json:"days"`
	SessionsScanned int      `json:"sessions_scanned"`
	Projects        int      `json:"projects"`
	ProjectNames    []string `json:"project_names"`
	TotalToolCalls  int      `json:"total_tool_calls"`
	TotalErrors     int      `json:"total_errors"`
	DateRange       string   `json:"date_range"` // "YYYY-MM-DD to YYYY-MM-DD" or "unknown"
}

// ErrorSummary groups error findings by category
type ErrorSummary struct {
	ByCategory map[string]CategorySummary `json:"by_category"`
}

// CategorySummary is an exact count with at most MaxSamples samples
type CategorySummary struct {
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// FailingCommand is one row of the failing-command ranking
type FailingCommand struct {
	Command     string `json:"command"`
	Count       int    `json:"count"`
	SampleError string `json:"sample_error"`
}

// DeniedCommand is one row of the permission-denial ranking
type DeniedCommand struct {
	Command  string `json:"command"` // Command, or tool name when no command was resolved
	Count    int    `json:"count"`
	Expected bool   `json:"expected"`
}

// RetrySummary totals retry loops across sessions
type RetrySummary struct {
	Total         int                `json:"total"`   // Number of findings
	ByTool        map[string]int     `json:"by_tool"` // Sum of finding counts per tool label
	WorstSessions []SessionRetryRank `json:"worst_sessions"`
}

// SessionRetryRank ranks a session by its number of retry loops
type SessionRetryRank struct {
	SessionID  string `json:"session_id"`
	Project    string `json:"project"`
	RetryLoops int    `json:"retry_loops"`
}

// SessionErrorRank ranks a session by error rate
type SessionErrorRank struct {
	SessionID string  `json:"session_id"`
	Project   string  `json:"project"`
	ErrorRate float64 `json:"error_rate"`
	Errors    int     `json:"errors"`
	ToolCalls int     `json:"tool_calls"`
}

// PatternSummary is one misbehavior pattern with bounded samples
type PatternSummary struct {
	Pattern string   `json:"pattern"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// EmptyReport returns the report for a run that scanned nothing
func EmptyReport(days int) *Report {
	return &Report{
		Meta: ReportMeta{
			Days:         days,
			ProjectNames: []string{},
			DateRange:    DateRangeUnknown,
		},
		ErrorSummary:             ErrorSummary{ByCategory: map[string]CategorySummary{}},
		TopFailingCommands:       []FailingCommand{},
		PermissionDeniedCommands: []DeniedCommand{},
		RetryLoops: RetrySummary{
			ByTool:        map[string]int{},
			WorstSessions: []SessionRetryRank{},
		},
		ProblematicSessions: []SessionErrorRank{},
		MisbehaviorPatterns: []PatternSummary{},
	}
}

// SortedCategories returns category names by descending count, then name
func (r *Report) SortedCategories() []string {
	counts := make(map[string]int, len(r.ErrorSummary.ByCategory))
	for name, c := range r.ErrorSummary.ByCategory {
		counts[name] = c.Count
	}
	return rankByCount(counts, 0)
}

// SortedRetryTools returns retry tool labels by descending count, then name
func (r *Report) SortedRetryTools() []string {
	return rankByCount(r.RetryLoops.ByTool, 0)
}

// Validate checks the size bounds every report must respect
func (r *Report) Validate() error {
	for name, c := range r.ErrorSummary.ByCategory {
		if len(c.Samples) > MaxSamples {
			return fmt.Errorf("category %s has %d samples, limit is %d", name, len(c.Samples), MaxSamples)
		}
		if len(c.Samples) > c.Count {
			return fmt.Errorf("category %s has more samples than occurrences", name)
		}
	}
	for _, p := range r.MisbehaviorPatterns {
		if len(p.Samples) > MaxSamples {
			return fmt.Errorf("pattern %s has %d samples, limit is %d", p.Pattern, len(p.Samples), MaxSamples)
		}
	}
	if len(r.TopFailingCommands) > TopCommands {
		return fmt.Errorf("too many failing commands: %d", len(r.TopFailingCommands))
	}
	if len(r.PermissionDeniedCommands) > TopCommands {
		return fmt.Errorf("too many denied commands: %d", len(r.PermissionDeniedCommands))
	}
	if len(r.ProblematicSessions) > TopSessions {
		return fmt.Errorf("too many problematic sessions: %d", len(r.ProblematicSessions))
	}
	if len(r.RetryLoops.WorstSessions) > TopRetrySessions {
		return fmt.Errorf("too many retry sessions: %d", len(r.RetryLoops.WorstSessions))
	}
	if !sort.SliceIsSorted(r.MisbehaviorPatterns, func(i, j int) bool {
		return r.MisbehaviorPatterns[i].Count > r.MisbehaviorPatterns[j].Count
	}) {
		return fmt.Errorf("misbehavior patterns are not ranked by count")
	}
	return nil
}
