package behavioral

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink records every session handed to it
type memorySink struct {
	mu      sync.Mutex
	ids     []string
	skipped []string
	fail    bool
}

func (s *memorySink) RecordSession(_ context.Context, stats *SessionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, stats.SessionID)
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func (s *memorySink) RecordSkipped(_ context.Context, src SessionSource, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, src.SessionID)
	return nil
}

func sourcesFor(t *testing.T, base string, n int) []SessionSource {
	t.Helper()
	now := time.Now()
	var sources []SessionSource
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%08x-0000-0000-0000-000000000000", i)
		path := writeSession(t, base, "proj", id, now,
			bashLine(t, "a", "make"),
			resultLine(t, "a", "Exit code 1", true),
		)
		sources = append(sources, SessionSource{Path: path, Project: "proj", SessionID: id, ModTime: now})
	}
	return sources
}

func TestRunnerRun(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			base := t.TempDir()
			sources := sourcesFor(t, base, 23)

			log := &recordingLogger{}
			sink := &memorySink{}
			runner := NewRunner(workers, log)
			runner.Sinks = []SessionSink{sink}

			var lastDone int
			runner.OnProgress = func(done, total int) {
				assert.Equal(t, 23, total)
				lastDone = done
			}

			agg, stats, err := runner.Run(context.Background(), sources)
			require.NoError(t, err)

			assert.Equal(t, RunStats{Discovered: 23, Scanned: 23}, stats)
			assert.Equal(t, 23, lastDone)
			assert.Len(t, sink.ids, 23)

			report := agg.Report(14)
			assert.Equal(t, 23, report.Meta.SessionsScanned)
			assert.Equal(t, 23, report.Meta.TotalErrors)
			assert.Equal(t, 23, report.ErrorSummary.ByCategory[CategoryCommandFailed].Count)
			assert.Equal(t, []FailingCommand{{Command: "make", Count: 23, SampleError: "Exit code 1"}}, report.TopFailingCommands)

			// Progress every 10 sessions
			assert.Equal(t, []string{"Processing session 10/23...", "Processing session 20/23..."}, log.info)
		})
	}
}

func TestRunnerSkipsUnreadableSessions(t *testing.T) {
	base := t.TempDir()
	sources := sourcesFor(t, base, 3)
	missing := SessionSource{
		Path:      filepath.Join(base, "proj", "ffffffff-0000-0000-0000-000000000000.jsonl"),
		Project:   "proj",
		SessionID: "ffffffff-0000-0000-0000-000000000000",
	}
	sources = append(sources, missing)

	log := &recordingLogger{}
	sink := &memorySink{fail: true}
	runner := NewRunner(2, log)
	runner.Sinks = []SessionSink{sink}

	agg, stats, err := runner.Run(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Discovered)
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{missing.Path}, stats.SkippedPaths)
	assert.Equal(t, 3, agg.Sessions())
	assert.Equal(t, []string{missing.SessionID}, sink.skipped)

	// One warning for the unreadable file, one per failed sink write
	assert.Len(t, log.warn, 4)
}

func TestRunnerSkipsSessionsFailingValidation(t *testing.T) {
	base := t.TempDir()
	sources := sourcesFor(t, base, 1)

	// No file stem means no session id
	unnamed := filepath.Join(base, "proj", ".jsonl")
	require.NoError(t, os.WriteFile(unnamed, []byte(jsonl(bashLine(t, "a", "ls"))), 0644))
	sources = append(sources, SessionSource{Path: unnamed, Project: "proj"})

	log := &recordingLogger{}
	agg, stats, err := NewRunner(1, log).Run(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, []string{unnamed}, stats.SkippedPaths)
	assert.Equal(t, 1, agg.Sessions())
	require.Len(t, log.warn, 1)
	assert.Contains(t, log.warn[0], "session ID is required")
}

func TestRunnerDateRangeIncludesSkippedSources(t *testing.T) {
	base := t.TempDir()
	sources := sourcesFor(t, base, 2)
	sources = append(sources, SessionSource{
		Path:      filepath.Join(base, "proj", "eeeeeeee-0000-0000-0000-000000000000.jsonl"),
		Project:   "proj",
		SessionID: "eeeeeeee-0000-0000-0000-000000000000",
		ModTime:   time.Date(2020, 1, 2, 12, 0, 0, 0, time.Local),
	})

	agg, stats, err := NewRunner(2, nil).Run(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)

	report := agg.Report(14)
	assert.Equal(t, 2, report.Meta.SessionsScanned)
	assert.True(t, strings.HasPrefix(report.Meta.DateRange, "2020-01-02 to "), report.Meta.DateRange)
}

func TestRunnerCancelled(t *testing.T) {
	base := t.TempDir()
	sources := sourcesFor(t, base, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewRunner(1, nil).Run(ctx, sources)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerNoSources(t *testing.T) {
	agg, stats, err := NewRunner(2, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Discovered)
	assert.Equal(t, EmptyReport(14), agg.Report(14))
}
