package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nielsmadan/agentic-coding/internal/behavioral"
)

func fixedLogger(buf *bytes.Buffer, level string) *ConsoleLogger {
	cl := NewConsoleLogger(buf, level)
	cl.now = func() time.Time { return time.Date(2026, 4, 2, 14, 5, 9, 0, time.UTC) }
	return cl
}

func TestConsoleLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cl := fixedLogger(&buf, "info")

	cl.LogInfo("Processing session 10/40...")

	want := "[14:05:09] [INFO] Processing session 10/40...\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestConsoleLoggerLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantLines int
	}{
		{"trace", 5},
		{"debug", 4},
		{"info", 3},
		{"WARN", 2},
		{"error", 1},
		{"", 3},
		{"bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			cl := fixedLogger(&buf, tt.level)

			cl.LogTrace("t")
			cl.LogDebug("d")
			cl.LogInfo("i")
			cl.LogWarn("w")
			cl.LogError("e")

			lines := strings.Count(buf.String(), "\n")
			if lines != tt.wantLines {
				t.Errorf("level %q logged %d lines, want %d:\n%s", tt.level, lines, tt.wantLines, buf.String())
			}
		})
	}
}

func TestConsoleLoggerNilWriter(t *testing.T) {
	cl := NewConsoleLogger(nil, "trace")
	cl.LogInfo("discarded")
	cl.LogSummary(behavioral.EmptyReport(14))
	cl.LogProgress(1, 2)
}

func TestConsoleLoggerSatisfiesRunnerLogger(t *testing.T) {
	var _ behavioral.Logger = NewConsoleLogger(nil, "info")
}

func TestLogScanStartAndComplete(t *testing.T) {
	var buf bytes.Buffer
	cl := fixedLogger(&buf, "info")

	cl.LogScanStart(12, 14)
	cl.LogScanComplete(behavioral.RunStats{Discovered: 12, Scanned: 11, Skipped: 1}, 90*time.Second)

	out := buf.String()
	if !strings.Contains(out, "[14:05:09] Scanning 12 sessions from the last 14 days\n") {
		t.Errorf("missing start line:\n%s", out)
	}
	if !strings.Contains(out, "Scanned 11 sessions (1 skipped) in 1m30s\n") {
		t.Errorf("missing complete line:\n%s", out)
	}

	buf.Reset()
	quiet := fixedLogger(&buf, "warn")
	quiet.LogScanStart(1, 1)
	quiet.LogScanComplete(behavioral.RunStats{}, time.Second)
	if buf.Len() != 0 {
		t.Errorf("warn level should suppress scan lines, got %q", buf.String())
	}
}

func TestLogSummary(t *testing.T) {
	report := behavioral.EmptyReport(14)
	report.Meta.TotalErrors = 7
	report.RetryLoops.Total = 2
	report.Meta.SessionsScanned = 5

	var buf bytes.Buffer
	// Summary ignores the level filter
	cl := fixedLogger(&buf, "error")
	cl.LogSummary(report)

	want := "Summary: 7 errors, 2 retry loops across 5 sessions\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	cl := fixedLogger(&buf, "debug")
	cl.LogProgress(5, 10)

	want := "[14:05:09] Progress: [=====     ] 5/10 (50%)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	fixedLogger(&buf, "info").LogProgress(5, 10)
	if buf.Len() != 0 {
		t.Errorf("progress is debug output, got %q", buf.String())
	}
}

func TestConsoleLoggerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	cl := fixedLogger(&buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.LogInfo("line")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "[INFO] line\n"); got != 20 {
		t.Errorf("got %d complete lines, want 20", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		250 * time.Millisecond:                "250ms",
		5 * time.Second:                       "5s",
		2 * time.Minute:                       "2m",
		90 * time.Second:                      "1m30s",
		2*time.Hour + 15*time.Minute:          "2h15m",
		time.Hour + time.Minute + time.Second: "1h1m1s",
		3 * time.Hour:                         "3h",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestFormatSessionMetrics(t *testing.T) {
	if got := FormatSessionMetrics(nil); got != "" {
		t.Errorf("nil stats should format empty, got %q", got)
	}

	s := behavioral.NewSessionStats("s1", "proj")
	if got := FormatSessionMetrics(s); got != "" {
		t.Errorf("no tool calls should format empty, got %q", got)
	}

	s.TotalToolCalls = 9
	s.TotalErrors = 2
	s.RetryLoops = []behavioral.RetryLoop{{Tool: "Bash", Count: 3}}
	got := FormatSessionMetrics(s)
	for _, want := range []string{"tools", "9", "errors", "2", "retries", "1"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSessionMetrics() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "misbehaviors") {
		t.Errorf("zero counts should be omitted: %q", got)
	}
}
