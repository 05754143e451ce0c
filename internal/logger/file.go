package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LatestLogName is the symlink that always points at the newest run log
const LatestLogName = "latest.log"

// RunLog writes one JSON line per scanned or skipped session to
// <dir>/run-YYYYMMDD-HHMMSS.log and maintains a latest.log symlink.
// It implements behavioral.SessionSink and behavioral.SkipSink and is safe
// for concurrent use by the runner's workers.
type RunLog struct {
	path   string
	file   *os.File
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewRunLog creates the run log file inside dir, creating dir if needed.
// Valid levels match ConsoleLogger; session entries are written at info.
func NewRunLog(dir string, logLevel string, now time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	runFile := filepath.Join(dir, fmt.Sprintf("run-%s.log", now.Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create run log file: %w", err)
	}

	if err := updateLatestLink(dir, runFile); err != nil {
		file.Close()
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(file),
		zap.NewAtomicLevelAt(zapLevel(logLevel)),
	)

	rl := &RunLog{
		path:   runFile,
		file:   file,
		logger: zap.New(core),
	}
	rl.logger.Info("run started", zap.Time("started_at", now))
	return rl, nil
}

// updateLatestLink points dir/latest.log at runFile, replacing any old link
func updateLatestLink(dir, runFile string) error {
	symlinkPath := filepath.Join(dir, LatestLogName)

	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			return fmt.Errorf("remove old symlink: %w", err)
		}
	}

	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	return nil
}

// zapLevel maps review-logs level names onto zap levels; trace has no zap
// equivalent and is treated as debug
func zapLevel(level string) zapcore.Level {
	switch normalizeLogLevel(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Path returns the run log file path
func (rl *RunLog) Path() string {
	return rl.path
}

// RecordSession logs the signal counts of one scanned session
func (rl *RunLog) RecordSession(_ context.Context, s *behavioral.SessionStats) error {
	if s == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return nil
	}

	rl.logger.Info("session scanned",
		zap.String("session_id", s.SessionID),
		zap.String("project", s.Project),
		zap.Int("tool_calls", s.TotalToolCalls),
		zap.Int("errors", s.TotalErrors),
		zap.Float64("error_rate", s.ErrorRate()),
		zap.Int("retry_loops", len(s.RetryLoops)),
		zap.Int("misbehaviors", len(s.Misbehaviors)),
		zap.Int("permission_denials", len(s.PermissionDenials)),
	)
	return nil
}

// RecordSkipped logs a session that could not be read
func (rl *RunLog) RecordSkipped(_ context.Context, src behavioral.SessionSource, cause error) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return nil
	}

	rl.logger.Warn("session skipped",
		zap.String("session_id", src.SessionID),
		zap.String("project", src.Project),
		zap.String("path", src.Path),
		zap.Error(cause),
	)
	return nil
}

// LogRunComplete writes the closing entry with the run totals
func (rl *RunLog) LogRunComplete(stats behavioral.RunStats, report *behavioral.Report, duration time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return
	}

	fields := []zap.Field{
		zap.Int("discovered", stats.Discovered),
		zap.Int("scanned", stats.Scanned),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("duration", duration),
	}
	if report != nil {
		fields = append(fields,
			zap.Int("total_errors", report.Meta.TotalErrors),
			zap.Int("retry_loops", report.RetryLoops.Total),
			zap.String("date_range", report.Meta.DateRange),
		)
	}
	rl.logger.Info("run complete", fields...)
}

// Close flushes and closes the run log file. It is safe to call twice.
func (rl *RunLog) Close() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return nil
	}
	rl.closed = true

	_ = rl.logger.Sync()
	return rl.file.Close()
}
