package behavioral

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDays is the default lookback window
const DefaultDays = 14

// FilterCriteria selects which session files are scanned
type FilterCriteria struct {
	Days    int    // Lookback window on file modification time
	Project string // Case-insensitive substring of the project directory name
}

// Validate checks if the filter criteria are valid
func (fc *FilterCriteria) Validate() error {
	if fc.Days < 1 {
		return fmt.Errorf("invalid days %d: must be at least 1", fc.Days)
	}
	return nil
}

// Cutoff returns the oldest modification time still inside the window
func (fc *FilterCriteria) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(fc.Days) * 24 * time.Hour)
}

// MatchesProject reports whether a project directory passes the filter
func (fc *FilterCriteria) MatchesProject(project string) bool {
	if fc.Project == "" {
		return true
	}
	return strings.Contains(strings.ToLower(project), strings.ToLower(fc.Project))
}
