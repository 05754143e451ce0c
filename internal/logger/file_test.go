package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runStart = time.Date(2026, 4, 2, 14, 5, 9, 0, time.UTC)

// readEntries decodes every JSON line in the run log
func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry), sc.Text())
		entries = append(entries, entry)
	}
	require.NoError(t, sc.Err())
	return entries
}

func TestNewRunLogCreatesFileAndSymlink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	rl, err := NewRunLog(dir, "info", runStart)
	require.NoError(t, err)
	defer rl.Close()

	assert.Equal(t, filepath.Join(dir, "run-20260402-140509.log"), rl.Path())

	target, err := os.Readlink(filepath.Join(dir, LatestLogName))
	require.NoError(t, err)
	assert.Equal(t, "run-20260402-140509.log", target)

	// A later run moves the symlink
	next, err := NewRunLog(dir, "info", runStart.Add(time.Minute))
	require.NoError(t, err)
	defer next.Close()

	target, err = os.Readlink(filepath.Join(dir, LatestLogName))
	require.NoError(t, err)
	assert.Equal(t, "run-20260402-140609.log", target)
}

func TestRunLogEntries(t *testing.T) {
	dir := t.TempDir()
	rl, err := NewRunLog(dir, "debug", runStart)
	require.NoError(t, err)

	var (
		_ behavioral.SessionSink = rl
		_ behavioral.SkipSink    = rl
	)

	s := behavioral.NewSessionStats("sess-1", "proj")
	s.TotalToolCalls = 4
	s.TotalErrors = 1
	s.RetryLoops = []behavioral.RetryLoop{{Tool: "Bash", Count: 3}}

	ctx := context.Background()
	require.NoError(t, rl.RecordSession(ctx, s))
	require.NoError(t, rl.RecordSession(ctx, nil))
	require.NoError(t, rl.RecordSkipped(ctx, behavioral.SessionSource{
		Path: "/p/proj/x.jsonl", Project: "proj", SessionID: "x",
	}, errors.New("permission denied")))
	rl.LogRunComplete(behavioral.RunStats{Discovered: 2, Scanned: 1, Skipped: 1}, behavioral.EmptyReport(14), time.Second)
	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close())

	entries := readEntries(t, rl.Path())
	require.Len(t, entries, 4)

	assert.Equal(t, "run started", entries[0]["msg"])

	assert.Equal(t, "session scanned", entries[1]["msg"])
	assert.Equal(t, "sess-1", entries[1]["session_id"])
	assert.Equal(t, float64(4), entries[1]["tool_calls"])
	assert.Equal(t, float64(1), entries[1]["retry_loops"])
	assert.Equal(t, 0.25, entries[1]["error_rate"])

	assert.Equal(t, "session skipped", entries[2]["msg"])
	assert.Equal(t, "warn", entries[2]["level"])
	assert.Equal(t, "permission denied", entries[2]["error"])

	assert.Equal(t, "run complete", entries[3]["msg"])
	assert.Equal(t, float64(1), entries[3]["skipped"])
	assert.Equal(t, "unknown", entries[3]["date_range"])
}

func TestRunLogLevelFilter(t *testing.T) {
	rl, err := NewRunLog(t.TempDir(), "warn", runStart)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rl.RecordSession(ctx, behavioral.NewSessionStats("s", "p")))
	require.NoError(t, rl.RecordSkipped(ctx, behavioral.SessionSource{SessionID: "x"}, errors.New("boom")))
	require.NoError(t, rl.Close())

	entries := readEntries(t, rl.Path())
	require.Len(t, entries, 1)
	assert.Equal(t, "session skipped", entries[0]["msg"])
}

func TestRunLogAfterCloseIsNoop(t *testing.T) {
	rl, err := NewRunLog(t.TempDir(), "info", runStart)
	require.NoError(t, err)
	require.NoError(t, rl.Close())

	assert.NoError(t, rl.RecordSession(context.Background(), behavioral.NewSessionStats("s", "p")))
	rl.LogRunComplete(behavioral.RunStats{}, nil, 0)

	assert.Len(t, readEntries(t, rl.Path()), 1)
}

func TestRunLogConcurrentSessions(t *testing.T) {
	rl, err := NewRunLog(t.TempDir(), "info", runStart)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.RecordSession(context.Background(), behavioral.NewSessionStats("s", "p")))
		}()
	}
	wg.Wait()
	require.NoError(t, rl.Close())

	assert.Len(t, readEntries(t, rl.Path()), 26)
}

func TestNewRunLogUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewRunLog(filepath.Join(blocker, "logs"), "info", runStart)
	assert.Error(t, err)
}
