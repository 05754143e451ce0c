package behavioral

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultProgressInterval is how many sessions pass between progress lines
const DefaultProgressInterval = 10

// Logger is the logging surface the engine needs
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
}

type nopLogger struct{}

func (nopLogger) LogDebug(string) {}
func (nopLogger) LogInfo(string)  {}
func (nopLogger) LogWarn(string)  {}

// SessionSink receives every successfully scanned session
type SessionSink interface {
	RecordSession(ctx context.Context, stats *SessionStats) error
}

// SkipSink is implemented by sinks that also want to know about sessions
// that could not be read
type SkipSink interface {
	RecordSkipped(ctx context.Context, source SessionSource, err error) error
}

// RunStats summarises one Run
type RunStats struct {
	Discovered   int
	Scanned      int
	Skipped      int
	SkippedPaths []string
}

// Runner scans sessions concurrently and folds them into one Aggregator
type Runner struct {
	Workers          int
	Logger           Logger
	Sinks            []SessionSink
	ProgressInterval int
	OnProgress       func(done, total int) // called after each session, serialized
}

// NewRunner creates a Runner. workers <= 0 means one worker per CPU.
func NewRunner(workers int, logger Logger) *Runner {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Runner{
		Workers:          workers,
		Logger:           logger,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Run scans every source. A session that cannot be read is logged and
// skipped; it never fails the run. Sink errors are logged too. Only context
// cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, sources []SessionSource) (*Aggregator, RunStats, error) {
	agg := NewAggregator()
	stats := RunStats{Discovered: len(sources)}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := r.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range sources {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			session, err := ScanSessionFile(src.Path, src.Project)
			if err == nil {
				if verr := session.Validate(); verr != nil {
					err = fmt.Errorf("invalid session %s: %w", src.Path, verr)
				}
			}
			if err != nil {
				logger.LogWarn(fmt.Sprintf("could not read %s: %v", src.Path, err))
				agg.ObserveSource(src)
				r.notifySkipped(gctx, logger, src, err)
			} else {
				if session.ModTime.IsZero() {
					session.ModTime = src.ModTime
				}
				agg.Add(session)
				r.notifySinks(gctx, logger, session)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				stats.Skipped++
				stats.SkippedPaths = append(stats.SkippedPaths, src.Path)
			} else {
				stats.Scanned++
			}
			if r.ProgressInterval > 0 && done%r.ProgressInterval == 0 {
				logger.LogInfo(fmt.Sprintf("Processing session %d/%d...", done, len(sources)))
			}
			if r.OnProgress != nil {
				r.OnProgress(done, len(sources))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return agg, stats, fmt.Errorf("scan sessions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return agg, stats, fmt.Errorf("scan sessions: %w", err)
	}

	logger.LogDebug(fmt.Sprintf("Processed %d sessions successfully", stats.Scanned))
	return agg, stats, nil
}

func (r *Runner) notifySinks(ctx context.Context, logger Logger, session *SessionStats) {
	for _, sink := range r.Sinks {
		if err := sink.RecordSession(ctx, session); err != nil {
			logger.LogWarn(fmt.Sprintf("failed to record session %s: %v", session.SessionID, err))
		}
	}
}

func (r *Runner) notifySkipped(ctx context.Context, logger Logger, src SessionSource, cause error) {
	for _, sink := range r.Sinks {
		ss, ok := sink.(SkipSink)
		if !ok {
			continue
		}
		if err := ss.RecordSkipped(ctx, src, cause); err != nil {
			logger.LogWarn(fmt.Sprintf("failed to record skipped session %s: %v", src.SessionID, err))
		}
	}
}
