package behavioral

import (
	"errors"
	"time"
)

// UnknownTool is recorded when a tool result cannot be matched to its call
const UnknownTool = "unknown"

// ErrorFinding is one error-flagged tool result
type ErrorFinding struct {
	Tool    string `json:"tool"`
	Error   string `json:"error"`
	Command string `json:"command,omitempty"` // Bash command, when the call was resolved
}

// RetryLoop is a detected repetition of the same action
type RetryLoop struct {
	Tool   string `json:"tool"`             // Tool name, or SameCommandTool
	Count  int    `json:"count"`            // Run length (2 for same-command repeats)
	Sample string `json:"sample,omitempty"` // Repeated command for same-command repeats
}

// Misbehavior is a command-level misuse pattern
type Misbehavior struct {
	Pattern string `json:"pattern"`
	Sample  string `json:"sample"`
}

// PermissionDenial is a refused tool permission request
type PermissionDenial struct {
	Tool     string `json:"tool"`
	Command  string `json:"command"`
	Expected bool   `json:"expected"` // Denial of a git write, which policy blocks on purpose
	Sample   string `json:"sample"`
}

// TextFinding holds a truncated sample for categories with no other fields
type TextFinding struct {
	Sample string `json:"sample"`
}

// CommandFailure is an error result that quoted a process exit code
type CommandFailure struct {
	Command  string `json:"command"`
	ExitCode string `json:"exit_code"`
	Error    string `json:"error"`
}

// SessionStats is everything extracted from one session file
type SessionStats struct {
	SessionID        string    `json:"session_id"`
	Project          string    `json:"project"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	ModTime          time.Time `json:"mod_time"`

	TotalToolCalls int `json:"total_tool_calls"`
	TotalErrors    int `json:"total_errors"`

	Errors            []ErrorFinding     `json:"errors"`
	RetryLoops        []RetryLoop        `json:"retry_loops"`
	Misbehaviors      []Misbehavior      `json:"misbehaviors"`
	PermissionDenials []PermissionDenial `json:"permission_denials"`
	UserRejections    []TextFinding      `json:"user_rejections"`
	CommandFailures   []CommandFailure   `json:"command_failures"`
	FileNotFound      []TextFinding      `json:"file_not_found"`
	Interrupted       []TextFinding      `json:"interrupted"`
	HookBlocks        []TextFinding      `json:"hook_blocks"`
}

// NewSessionStats creates empty stats for a session
func NewSessionStats(sessionID, project string) *SessionStats {
	return &SessionStats{
		SessionID: sessionID,
		Project:   project,
	}
}

// ErrorRate returns errors per tool call, 0 when the session made no calls
func (s *SessionStats) ErrorRate() float64 {
	if s.TotalToolCalls == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalToolCalls)
}

// Validate checks the invariants a finished scan must hold
func (s *SessionStats) Validate() error {
	if s.SessionID == "" {
		return errors.New("session ID is required")
	}
	if s.TotalToolCalls < 0 || s.TotalErrors < 0 {
		return errors.New("counts must be non-negative")
	}
	if len(s.Errors) != s.TotalErrors {
		return errors.New("error findings do not match total errors")
	}
	return nil
}
