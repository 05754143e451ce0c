package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every scan in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database ("" = $REVIEW_LOGS_HOME/history.db)
	DBPath string `yaml:"db_path"`

	// KeepRuns is how many runs to keep after each scan (0 = keep all)
	KeepRuns int `yaml:"keep_runs"`
}

// Config represents review-logs configuration options
type Config struct {
	// Days is the lookback window on session file modification time
	Days int `yaml:"days"`

	// Project limits scanning to project directories containing this substring
	Project string `yaml:"project"`

	// ProjectsDir is the Claude Code projects directory
	ProjectsDir string `yaml:"projects_dir"`

	// Output is the report destination ("" = default path, "-" = stdout)
	Output string `yaml:"output"`

	// Format is the report format (json, markdown, html)
	Format string `yaml:"format"`

	// Workers is the number of sessions scanned in parallel (0 = one per CPU)
	Workers int `yaml:"workers"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is where per-run JSON logs are written ("" = disabled)
	LogDir string `yaml:"log_dir"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Days:        14,
		Project:     "",
		ProjectsDir: "~/.claude/projects",
		Output:      "",
		Format:      "json",
		Workers:     runtime.NumCPU(),
		LogLevel:    "info",
		LogDir:      "",
		History: HistoryConfig{
			Enabled:  false,
			DBPath:   "",
			KeepRuns: 50,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys present in the file override the defaults; absent keys keep them
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadDefault loads config.yaml from the review-logs home directory
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfig(path)
}

// FlagOverrides carries CLI flag values; nil fields were not set by the user
type FlagOverrides struct {
	Days        *int
	Project     *string
	ProjectsDir *string
	Output      *string
	Format      *string
	Workers     *int
	LogLevel    *string
	LogDir      *string
	History     *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.Days != nil {
		c.Days = *f.Days
	}
	if f.Project != nil {
		c.Project = *f.Project
	}
	if f.ProjectsDir != nil {
		c.ProjectsDir = *f.ProjectsDir
	}
	if f.Output != nil {
		c.Output = *f.Output
	}
	if f.Format != nil {
		c.Format = *f.Format
	}
	if f.Workers != nil {
		c.Workers = *f.Workers
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.History != nil {
		c.History.Enabled = *f.History
	}
}

// Validate validates the configuration values
// Every returned error wraps ErrInvalidConfig
func (c *Config) Validate() error {
	if c.Days < 1 {
		return fmt.Errorf("%w: days must be >= 1, got %d", ErrInvalidConfig, c.Days)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("%w: invalid log_level %q, must be one of: trace, debug, info, warn, error", ErrInvalidConfig, c.LogLevel)
	}

	validFormats := map[string]bool{
		"json":     true,
		"markdown": true,
		"md":       true,
		"html":     true,
	}
	if !validFormats[strings.ToLower(c.Format)] {
		return fmt.Errorf("%w: invalid format %q, must be one of: json, markdown, html", ErrInvalidConfig, c.Format)
	}

	if c.ProjectsDir == "" {
		return fmt.Errorf("%w: projects_dir cannot be empty", ErrInvalidConfig)
	}

	if c.History.KeepRuns < 0 {
		return fmt.Errorf("%w: history.keep_runs must be >= 0, got %d", ErrInvalidConfig, c.History.KeepRuns)
	}

	return nil
}
