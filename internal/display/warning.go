package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// maxListedFiles caps how many affected files a warning prints
const maxListedFiles = 10

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Files      []string // Related files (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Files) > 0 {
		b.WriteString("    ")
		if len(w.Files) == 1 {
			b.WriteString("Affected file:\n")
		} else {
			b.WriteString("Affected files:\n")
		}

		for i, file := range w.Files {
			if i == maxListedFiles {
				b.WriteString(fmt.Sprintf("      ... and %d more\n", len(w.Files)-maxListedFiles))
				break
			}
			b.WriteString(fmt.Sprintf("      %d. %s\n", i+1, file))
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	// fatih/color drops the escape codes when out is not a terminal
	color.New(color.FgYellow).Fprint(out, b.String())
}

// WarnSkippedSessions creates a warning for session files that could not be read
func WarnSkippedSessions(paths []string) Warning {
	noun, verb := "files", "were"
	if len(paths) == 1 {
		noun, verb = "file", "was"
	}
	return Warning{
		Title:      "Skipped Sessions",
		Message:    fmt.Sprintf("%d session %s could not be read and %s left out of the report", len(paths), noun, verb),
		Files:      paths,
		Suggestion: "Check that the files are readable and re-run the scan",
	}
}

// WarnMissingProjectsDir creates a warning for a missing projects directory
func WarnMissingProjectsDir(dir string) Warning {
	return Warning{
		Title:      "Projects Directory Not Found",
		Message:    fmt.Sprintf("%s does not exist; writing an empty report", dir),
		Suggestion: "Pass --projects-dir or set projects_dir in config.yaml",
	}
}
