package behavioral

import (
	"regexp"
	"strings"
)

// Truncation limits for text stored in findings.
const (
	MaxMessageLen = 200
	MaxCommandLen = 100
)

// Misbehavior pattern names.
const (
	PatternGHAPIMisuse     = "gh_api_misuse"
	PatternGitWrite        = "git_write_attempt"
	PatternUnnecessaryGitC = "unnecessary_git_c_flag"
)

var (
	exitCodePattern    = regexp.MustCompile(`Exit code[:\s]+(\d+)`)
	ghAPIMisusePattern = regexp.MustCompile(`gh\s+api\s+repos/[^/]+/[^/]+/(issues|pulls|releases|actions)`)
	gitWritePattern    = regexp.MustCompile(`\bgit\s+(add|commit|push|checkout|mv|rm)\b`)
	gitDirFlagPattern  = regexp.MustCompile(`\bgit\s+-C\s+(\S+)`)
	hookExitPattern    = regexp.MustCompile(`"exit(?:_code|Code)":\s*([1-9]\d*)`)
	workingDirPattern  = regexp.MustCompile(`(?i)working directory[:\s]+([^\s,]+)`)
)

var (
	userRejectedPhrases = []string{"doesn't want to proceed", "does not want to proceed"}
	fileNotFoundPhrases = []string{"File does not exist", "No such file"}
)

// IsPermissionDenied reports whether text contains both "permission to use"
// and "denied", case-insensitively and in any position.
func IsPermissionDenied(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "permission to use") && strings.Contains(lower, "denied")
}

// IsUserRejected reports whether the user declined to proceed.
func IsUserRejected(text string) bool {
	return containsAny(text, userRejectedPhrases)
}

// ExitCode returns the exit code quoted in a failed command's output. The
// code is returned verbatim; "0" is a valid match.
func ExitCode(text string) (string, bool) {
	m := exitCodePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsFileNotFound reports whether text describes a missing file.
func IsFileNotFound(text string) bool {
	return containsAny(text, fileNotFoundPhrases)
}

// IsInterrupted reports whether text mentions an interruption. The match is
// case-sensitive.
func IsInterrupted(text string) bool {
	return strings.Contains(text, "interrupted")
}

// IsGHAPIMisuse reports whether cmd calls a repository REST endpoint through
// "gh api" where a dedicated gh subcommand exists.
func IsGHAPIMisuse(cmd string) bool {
	return ghAPIMisusePattern.MatchString(cmd)
}

// IsGitWrite reports whether cmd runs a mutating git subcommand.
func IsGitWrite(cmd string) bool {
	return gitWritePattern.MatchString(cmd)
}

// IsRedundantGitDir reports whether cmd passes "git -C <dir>" where dir is
// the session working directory. Trailing slashes are ignored on both sides.
func IsRedundantGitDir(cmd, cwd string) bool {
	if cwd == "" {
		return false
	}
	m := gitDirFlagPattern.FindStringSubmatch(cmd)
	if m == nil {
		return false
	}
	return strings.TrimRight(m[1], "/") == strings.TrimRight(cwd, "/")
}

// HookExitCode finds a non-zero hook exit code anywhere in a raw entry.
func HookExitCode(raw string) (string, bool) {
	m := hookExitPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// WorkingDirectory extracts the path from a "working directory: <path>"
// phrase.
func WorkingDirectory(text string) (string, bool) {
	m := workingDirPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Truncate collapses newlines to spaces, trims surrounding whitespace and
// cuts s to at most max characters, ending in "..." when cut.
func Truncate(s string, max int) string {
	if s == "" {
		return ""
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
