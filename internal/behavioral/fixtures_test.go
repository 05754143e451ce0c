package behavioral

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mustJSON marshals v or fails the test
func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func toolUseLine(t *testing.T, id, name string, input map[string]interface{}) string {
	t.Helper()
	return mustJSON(t, map[string]interface{}{
		"type": "assistant",
		"message": map[string]interface{}{
			"role": "assistant",
			"content": []interface{}{
				map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": input},
			},
		},
	})
}

func bashLine(t *testing.T, id, cmd string) string {
	t.Helper()
	return toolUseLine(t, id, "Bash", map[string]interface{}{"command": cmd})
}

func resultLine(t *testing.T, id, text string, isError bool) string {
	t.Helper()
	return mustJSON(t, map[string]interface{}{
		"type": "user",
		"message": map[string]interface{}{
			"role": "user",
			"content": []interface{}{
				map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": id,
					"content":     text,
					"is_error":    isError,
				},
			},
		},
	})
}

func userTextLine(t *testing.T, text string) string {
	t.Helper()
	return mustJSON(t, map[string]interface{}{
		"type":    "user",
		"message": map[string]interface{}{"role": "user", "content": text},
	})
}

func systemLine(t *testing.T, text string) string {
	t.Helper()
	return mustJSON(t, map[string]interface{}{"type": "system", "content": text})
}

func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// scan runs the scanner over in-memory lines
func scan(t *testing.T, lines ...string) *SessionStats {
	t.Helper()
	stats, err := ScanSession(strings.NewReader(jsonl(lines...)), "test-session", "test-project")
	require.NoError(t, err)
	return stats
}

// writeSession writes a session file under base/project and sets its mtime
func writeSession(t *testing.T, base, project, sessionID string, mtime time.Time, lines ...string) string {
	t.Helper()
	dir := filepath.Join(base, project)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, sessionID+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(jsonl(lines...)), 0644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	return path
}

// recordingLogger captures log lines by level
type recordingLogger struct {
	mu    sync.Mutex
	debug []string
	info  []string
	warn  []string
}

func (l *recordingLogger) LogDebug(m string) { l.record(&l.debug, m) }
func (l *recordingLogger) LogInfo(m string)  { l.record(&l.info, m) }
func (l *recordingLogger) LogWarn(m string)  { l.record(&l.warn, m) }

func (l *recordingLogger) record(dst *[]string, m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*dst = append(*dst, m)
}
