package behavioral

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultProjectsDir is where Claude Code keeps per-project session logs
const DefaultProjectsDir = "~/.claude/projects"

// ErrProjectsDirNotFound is returned when the projects directory is missing
var ErrProjectsDirNotFound = errors.New("projects directory not found")

// Pattern for session files: {uuid}.jsonl (e.g., 003c44c7-e568-46e5-8f00-c234961493cc.jsonl)
var sessionFilePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jsonl$`)

// SessionSource is one session file selected for scanning
type SessionSource struct {
	Path      string    `json:"path"`       // Full path to the JSONL file
	Project   string    `json:"project"`    // Project directory name
	SessionID string    `json:"session_id"` // File name without extension
	ModTime   time.Time `json:"mod_time"`   // File modification time
	Size      int64     `json:"size"`       // File size in bytes
}

// Discoverer finds session files under a projects directory
type Discoverer struct {
	BaseDir string
	Clock   clock.Clock
	Logger  Logger
}

// NewDiscoverer creates a Discoverer using the wall clock
func NewDiscoverer(baseDir string) *Discoverer {
	return &Discoverer{
		BaseDir: baseDir,
		Clock:   clock.New(),
		Logger:  nopLogger{},
	}
}

// Discover lists session files from matching projects modified within the
// lookback window, newest first. Each direct subdirectory of BaseDir is a
// project; session files sit directly inside it.
func (d *Discoverer) Discover(criteria FilterCriteria) ([]SessionSource, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	baseDir, err := expandHomeDir(d.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand home directory: %w", err)
	}

	projects, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectsDirNotFound, baseDir)
		}
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	cutoff := criteria.Cutoff(d.now())
	var sources []SessionSource

	for _, project := range projects {
		if !project.IsDir() || !criteria.MatchesProject(project.Name()) {
			continue
		}

		projectDir := filepath.Join(baseDir, project.Name())
		entries, err := os.ReadDir(projectDir)
		if err != nil {
			d.logger().LogWarn(fmt.Sprintf("failed to read project directory %s: %v", projectDir, err))
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !sessionFilePattern.MatchString(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !info.Mode().IsRegular() || info.ModTime().Before(cutoff) {
				continue
			}

			sources = append(sources, SessionSource{
				Path:      filepath.Join(projectDir, entry.Name()),
				Project:   project.Name(),
				SessionID: strings.TrimSuffix(entry.Name(), ".jsonl"),
				ModTime:   info.ModTime(),
				Size:      info.Size(),
			})
		}
	}

	// Sort by modification time (newest first)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].ModTime.After(sources[j].ModTime)
	})

	return sources, nil
}

func (d *Discoverer) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

func (d *Discoverer) logger() Logger {
	if d.Logger == nil {
		return nopLogger{}
	}
	return d.Logger
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	if path == "~" {
		return homeDir, nil
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}
