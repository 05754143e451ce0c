package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Days != 14 {
		t.Errorf("Days = %d, want 14", cfg.Days)
	}
	if cfg.ProjectsDir != "~/.claude/projects" {
		t.Errorf("ProjectsDir = %q, want %q", cfg.ProjectsDir, "~/.claude/projects")
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers = %d, want %d", cfg.Workers, runtime.NumCPU())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should default to false")
	}
	if cfg.History.KeepRuns != 50 {
		t.Errorf("History.KeepRuns = %d, want 50", cfg.History.KeepRuns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `days: 7
project: juggler
format: markdown
workers: 3
log_level: debug
history:
  enabled: true
  keep_runs: 10
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Days != 7 {
		t.Errorf("Days = %d, want 7", cfg.Days)
	}
	if cfg.Project != "juggler" {
		t.Errorf("Project = %q, want juggler", cfg.Project)
	}
	if cfg.Format != "markdown" {
		t.Errorf("Format = %q, want markdown", cfg.Format)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !cfg.History.Enabled || cfg.History.KeepRuns != 10 {
		t.Errorf("History = %+v, want enabled with keep_runs 10", cfg.History)
	}
	// Keys absent from the file keep their defaults
	if cfg.ProjectsDir != "~/.claude/projects" {
		t.Errorf("ProjectsDir = %q, want default", cfg.ProjectsDir)
	}
}

func TestLoadConfigMissingAndEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(tmpDir, "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Days != 14 {
		t.Errorf("Days = %d, want default 14", cfg.Days)
	}

	emptyPath := filepath.Join(tmpDir, "empty.yaml")
	if err := os.WriteFile(emptyPath, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(emptyPath)
	if err != nil {
		t.Fatalf("empty file should not error: %v", err)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want default json", cfg.Format)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "days: [unclosed"},
		{"wrong type", "days: many"},
		{"unknown key", "dayz: 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	days := 3
	format := "html"
	history := true
	output := "-"

	cfg.MergeWithFlags(FlagOverrides{
		Days:    &days,
		Format:  &format,
		History: &history,
		Output:  &output,
	})

	if cfg.Days != 3 {
		t.Errorf("Days = %d, want 3", cfg.Days)
	}
	if cfg.Format != "html" {
		t.Errorf("Format = %q, want html", cfg.Format)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled should be true")
	}
	if cfg.Output != "-" {
		t.Errorf("Output = %q, want -", cfg.Output)
	}
	// Unset flags leave config untouched
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"md alias", func(c *Config) { c.Format = "md" }, ""},
		{"uppercase level", func(c *Config) { c.LogLevel = "WARN" }, ""},
		{"zero days", func(c *Config) { c.Days = 0 }, "days"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.Format = "csv" }, "format"},
		{"empty projects dir", func(c *Config) { c.ProjectsDir = "" }, "projects_dir"},
		{"negative keep runs", func(c *Config) { c.History.KeepRuns = -5 }, "keep_runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestHomePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnvVar, home)

	got, err := GetHome()
	if err != nil || got != home {
		t.Fatalf("GetHome() = %q, %v; want %q", got, err, home)
	}

	path, err := ConfigPath()
	if err != nil || path != filepath.Join(home, "config.yaml") {
		t.Errorf("ConfigPath() = %q, %v", path, err)
	}

	cfg := DefaultConfig()
	dbPath, err := cfg.HistoryDBPath()
	if err != nil || dbPath != filepath.Join(home, "history.db") {
		t.Errorf("HistoryDBPath() = %q, %v", dbPath, err)
	}

	cfg.History.DBPath = "/custom/history.db"
	if dbPath, _ := cfg.HistoryDBPath(); dbPath != "/custom/history.db" {
		t.Errorf("HistoryDBPath() = %q, want custom path", dbPath)
	}
}

func TestLoadDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnvVar, home)
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("days: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Days != 30 {
		t.Errorf("Days = %d, want 30", cfg.Days)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	tests := map[string]string{
		"json":     "review-logs-report.json",
		"markdown": "review-logs-report.md",
		"md":       "review-logs-report.md",
		"html":     "review-logs-report.html",
	}
	for format, want := range tests {
		if got := filepath.Base(DefaultOutputPath(format)); got != want {
			t.Errorf("DefaultOutputPath(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no user home directory")
	}

	tests := map[string]string{
		"~":             userHome,
		"~/logs":        filepath.Join(userHome, "logs"),
		"/abs/path":     "/abs/path",
		"relative/path": "relative/path",
		"~other/path":   "~other/path",
		"":              "",
	}
	for in, want := range tests {
		got, err := ExpandHome(in)
		if err != nil {
			t.Errorf("ExpandHome(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}
