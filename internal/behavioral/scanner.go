package behavioral

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const bashTool = "Bash"

// toolCall is an invocation waiting for its result
type toolCall struct {
	name    string
	command string // set only for Bash calls with a string command
}

// sessionScan carries the rolling state of one forward pass over a session
type sessionScan struct {
	stats        *SessionStats
	openCalls    map[string]toolCall
	callSequence []string
	bashHistory  []BashInvocation
	cwd          string
}

func newSessionScan(sessionID, project string) *sessionScan {
	return &sessionScan{
		stats:     NewSessionStats(sessionID, project),
		openCalls: make(map[string]toolCall),
	}
}

// observe folds one record into the scan state
func (s *sessionScan) observe(rec *Record) {
	if s.cwd == "" && rec.Kind == KindSystem {
		if dir, ok := WorkingDirectory(rec.Content.FlattenText()); ok {
			s.cwd = dir
		}
	}
	if s.cwd == "" && rec.CWD != "" {
		s.cwd = rec.CWD
	}

	if rec.IsAssistant() {
		s.observeToolUses(rec.Content.ToolUses())
	}
	if rec.IsUser() {
		s.observeUserTurn(rec.Content)
	}
	if rec.Kind == KindProgress {
		raw := string(rec.Raw)
		if _, ok := HookExitCode(raw); ok {
			s.stats.HookBlocks = append(s.stats.HookBlocks, TextFinding{
				Sample: Truncate(raw, MaxMessageLen),
			})
		}
	}
}

func (s *sessionScan) observeToolUses(uses []Block) {
	for _, tu := range uses {
		s.stats.TotalToolCalls++
		call := toolCall{name: tu.Name}
		s.callSequence = append(s.callSequence, tu.Name)

		if tu.Name == bashTool {
			if cmd, ok := tu.StringInput("command"); ok && cmd != "" {
				call.command = cmd
				s.checkCommand(cmd)
				s.bashHistory = append(s.bashHistory, BashInvocation{Command: cmd})
			}
		}
		s.openCalls[tu.ID] = call
	}
}

// checkCommand runs the command-level misbehavior matchers
func (s *sessionScan) checkCommand(cmd string) {
	sample := Truncate(cmd, MaxCommandLen)
	if IsGHAPIMisuse(cmd) {
		s.addMisbehavior(PatternGHAPIMisuse, sample)
	}
	if IsGitWrite(cmd) {
		s.addMisbehavior(PatternGitWrite, sample)
	}
	if IsRedundantGitDir(cmd, s.cwd) {
		s.addMisbehavior(PatternUnnecessaryGitC, sample)
	}
}

func (s *sessionScan) addMisbehavior(pattern, sample string) {
	s.stats.Misbehaviors = append(s.stats.Misbehaviors, Misbehavior{Pattern: pattern, Sample: sample})
}

func (s *sessionScan) observeUserTurn(content Content) {
	results := content.ToolResults()
	if len(results) == 0 {
		// Plain conversational turns can still carry a refusal
		text := content.FlattenText()
		if IsPermissionDenied(text) {
			s.stats.PermissionDenials = append(s.stats.PermissionDenials, PermissionDenial{
				Tool:   UnknownTool,
				Sample: Truncate(text, MaxMessageLen),
			})
		}
		if IsUserRejected(text) {
			s.addUserRejection(text)
		}
		return
	}

	for _, tr := range results {
		s.observeResult(tr)
	}
}

// lookup resolves a result's originating call
func (s *sessionScan) lookup(id string) toolCall {
	call, ok := s.openCalls[id]
	if !ok {
		return toolCall{name: UnknownTool}
	}
	return call
}

func (s *sessionScan) observeResult(tr Block) {
	text := tr.ResultText()
	call := s.lookup(tr.ToolUseID)

	if tr.IsError {
		s.stats.TotalErrors++
		finding := ErrorFinding{
			Tool:  call.name,
			Error: Truncate(text, MaxMessageLen),
		}
		if call.command != "" {
			finding.Command = Truncate(call.command, MaxCommandLen)
		}
		s.stats.Errors = append(s.stats.Errors, finding)

		// Only the most recent Bash invocation can be marked failed
		if call.name == bashTool && len(s.bashHistory) > 0 {
			s.bashHistory[len(s.bashHistory)-1].Failed = true
		}
	}

	if !tr.IsError && text == "" {
		return
	}

	if IsPermissionDenied(text) {
		s.stats.PermissionDenials = append(s.stats.PermissionDenials, PermissionDenial{
			Tool:     call.name,
			Command:  Truncate(call.command, MaxCommandLen),
			Expected: call.command != "" && IsGitWrite(call.command),
			Sample:   Truncate(text, MaxMessageLen),
		})
	}
	if IsUserRejected(text) {
		s.addUserRejection(text)
	}

	if !tr.IsError {
		return
	}
	if code, ok := ExitCode(text); ok {
		s.stats.CommandFailures = append(s.stats.CommandFailures, CommandFailure{
			Command:  Truncate(call.command, MaxCommandLen),
			ExitCode: code,
			Error:    Truncate(text, MaxMessageLen),
		})
	}
	if IsFileNotFound(text) {
		s.stats.FileNotFound = append(s.stats.FileNotFound, TextFinding{Sample: Truncate(text, MaxMessageLen)})
	}
	if IsInterrupted(text) {
		s.stats.Interrupted = append(s.stats.Interrupted, TextFinding{Sample: Truncate(text, MaxMessageLen)})
	}
}

func (s *sessionScan) addUserRejection(text string) {
	s.stats.UserRejections = append(s.stats.UserRejections, TextFinding{Sample: Truncate(text, MaxMessageLen)})
}

// finish runs the retry detectors and releases the per-session state
func (s *sessionScan) finish() *SessionStats {
	s.stats.WorkingDirectory = s.cwd
	s.stats.RetryLoops = append(s.stats.RetryLoops, DetectToolRuns(s.callSequence)...)
	s.stats.RetryLoops = append(s.stats.RetryLoops, DetectRepeatedFailures(s.bashHistory)...)
	s.openCalls = nil
	return s.stats
}

// ScanSession reads a session's JSONL stream in a single pass. Lines that do
// not decode are skipped. Lines have no length limit. A read error abandons
// the whole session.
func ScanSession(r io.Reader, sessionID, project string) (*SessionStats, error) {
	scan := newSessionScan(sessionID, project)
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				if rec, perr := ParseRecord(trimmed); perr == nil {
					scan.observe(rec)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read session %s: %w", sessionID, err)
		}
	}

	return scan.finish(), nil
}

// ScanSessionFile scans the session stored at path. The session ID is the
// file name without its .jsonl extension.
func ScanSessionFile(path, project string) (*SessionStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stats, err := ScanSession(f, sessionID, project)
	if err != nil {
		return nil, err
	}

	if info, err := f.Stat(); err == nil {
		stats.ModTime = info.ModTime()
	}
	return stats, nil
}
