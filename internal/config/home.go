package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnvVar overrides the review-logs home directory
const HomeEnvVar = "REVIEW_LOGS_HOME"

// GetHome returns the review-logs home directory
// Priority order:
//  1. REVIEW_LOGS_HOME environment variable (if set)
//  2. ~/.review-logs
//
// The directory is not created here; callers that write into it do that.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}
	return filepath.Join(userHome, ".review-logs"), nil
}

// ConfigPath returns $REVIEW_LOGS_HOME/config.yaml
func ConfigPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.yaml"), nil
}

// HistoryDBPath returns the configured history database path, falling back
// to $REVIEW_LOGS_HOME/history.db
func (c *Config) HistoryDBPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history.db"), nil
}

// DefaultOutputPath returns where the report goes when no output is given:
// review-logs-report.<ext> in the system temp directory
func DefaultOutputPath(format string) string {
	ext := "json"
	switch format {
	case "markdown", "md":
		ext = "md"
	case "html":
		ext = "html"
	}
	return filepath.Join(os.TempDir(), "review-logs-report."+ext)
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}
	if path == "~" {
		return userHome, nil
	}
	return filepath.Join(userHome, path[2:]), nil
}
