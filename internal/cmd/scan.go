package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"github.com/nielsmadan/agentic-coding/internal/config"
	"github.com/nielsmadan/agentic-coding/internal/display"
	"github.com/nielsmadan/agentic-coding/internal/history"
	"github.com/nielsmadan/agentic-coding/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan recent sessions and write a behavioral report",
		Long: `Scan Claude Code session logs modified within the lookback window and
write an aggregate report of errors, retry loops and misbehavior patterns.

Configuration is loaded from $REVIEW_LOGS_HOME/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  # Last two weeks, JSON report in the temp directory
  review-logs scan

  # One project, last 3 days, Markdown to stdout
  review-logs scan --project juggler --days 3 --format markdown --output -

  # Record the run and compare with the previous one
  review-logs scan --history`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().Int("days", defaults.Days, "Lookback window in days (by file modification time)")
	cmd.Flags().String("project", "", "Only scan projects whose directory name contains this text")
	cmd.Flags().String("projects-dir", defaults.ProjectsDir, "Claude Code projects directory")
	cmd.Flags().StringP("output", "o", "", "Report path, - for stdout (default: temp directory)")
	cmd.Flags().StringP("format", "f", defaults.Format, "Report format: json, markdown, html")
	cmd.Flags().Int("workers", 0, "Sessions scanned in parallel (0 = one per CPU)")
	cmd.Flags().String("log-level", defaults.LogLevel, "Console log level: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Write a JSON run log to this directory")
	cmd.Flags().Bool("history", false, "Record this run in the history database")

	return cmd
}

// runScan implements the scan command logic
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg.MergeWithFlags(scanFlagOverrides(cmd.Flags()))
	if err := cfg.Validate(); err != nil {
		return err
	}

	return executeScan(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// executeScan discovers, scans and reports. Only configuration problems and
// report write failures are returned as errors; unreadable sessions and
// history problems are logged.
func executeScan(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	start := time.Now()
	log := logger.NewConsoleLogger(stderr, cfg.LogLevel)

	format, err := behavioral.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	outputPath := cfg.Output
	if outputPath == "" {
		outputPath = config.DefaultOutputPath(format)
	}
	if outputPath, err = config.ExpandHome(outputPath); err != nil {
		return err
	}

	projectsDir, err := config.ExpandHome(cfg.ProjectsDir)
	if err != nil {
		return err
	}

	discoverer := behavioral.NewDiscoverer(projectsDir)
	discoverer.Logger = log

	sources, err := discoverer.Discover(behavioral.FilterCriteria{Days: cfg.Days, Project: cfg.Project})
	if err != nil {
		if !errors.Is(err, behavioral.ErrProjectsDirNotFound) {
			return fmt.Errorf("discover sessions: %w", err)
		}
		display.WarnMissingProjectsDir(projectsDir).Display(stderr)
		sources = nil
	}

	log.LogScanStart(len(sources), cfg.Days)

	runner := behavioral.NewRunner(cfg.Workers, log)
	runner.OnProgress = log.LogProgress

	var runLog *logger.RunLog
	if cfg.LogDir != "" {
		runLog, err = openRunLog(cfg, start)
		if err != nil {
			log.LogWarn(fmt.Sprintf("run log disabled: %v", err))
		} else {
			defer runLog.Close()
			runner.Sinks = append(runner.Sinks, runLog)
			log.LogDebug(fmt.Sprintf("Writing run log to %s", runLog.Path()))
		}
	}

	var (
		store   *history.Store
		run     *history.Run
		prevRun *history.Run
	)
	if cfg.History.Enabled {
		store, run, prevRun, err = beginHistory(ctx, cfg)
		if err != nil {
			log.LogWarn(fmt.Sprintf("history disabled: %v", err))
		} else {
			defer store.Close()
			runner.Sinks = append(runner.Sinks, store)
		}
	}

	agg, stats, err := runner.Run(ctx, sources)
	if err != nil {
		return err
	}
	report := agg.Report(cfg.Days)

	if err := behavioral.ExportTo(report, outputPath, format, stdout); err != nil {
		return err
	}

	if store != nil {
		finishHistory(ctx, log, store, run, stats, report, cfg.History.KeepRuns)
	}
	if runLog != nil {
		runLog.LogRunComplete(stats, report, time.Since(start))
	}

	log.LogScanComplete(stats, time.Since(start))
	if stats.Skipped > 0 {
		display.WarnSkippedSessions(stats.SkippedPaths).Display(stderr)
	}

	log.LogSummary(report)
	if prevRun != nil {
		fmt.Fprintln(stderr, display.FormatDelta(prevRun, report))
	}
	if width, ok := terminalWidth(stderr); ok {
		display.WriteSummaryTableWidth(stderr, report, width)
	}
	if outputPath != behavioral.StdoutPath {
		fmt.Fprintf(stderr, "Report written to %s\n", outputPath)
	}

	return nil
}

func openRunLog(cfg *config.Config, start time.Time) (*logger.RunLog, error) {
	dir, err := config.ExpandHome(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	return logger.NewRunLog(dir, cfg.LogLevel, start)
}

// beginHistory opens the store, starts a run and looks up the run before it
func beginHistory(ctx context.Context, cfg *config.Config) (*history.Store, *history.Run, *history.Run, error) {
	dbPath, err := cfg.HistoryDBPath()
	if err != nil {
		return nil, nil, nil, err
	}
	if dbPath, err = config.ExpandHome(dbPath); err != nil {
		return nil, nil, nil, err
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open history store: %w", err)
	}

	run, err := store.BeginRun(ctx, cfg.Days, cfg.Project)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("begin run: %w", err)
	}

	prev, err := store.PreviousRun(ctx, run.StartedAt)
	if err != nil && !errors.Is(err, history.ErrRunNotFound) {
		store.Close()
		return nil, nil, nil, fmt.Errorf("load previous run: %w", err)
	}
	return store, run, prev, nil
}

func finishHistory(ctx context.Context, log *logger.ConsoleLogger, store *history.Store, run *history.Run, stats behavioral.RunStats, report *behavioral.Report, keep int) {
	if err := store.FinishRun(ctx, run.ID, stats, report); err != nil {
		log.LogWarn(fmt.Sprintf("failed to record run: %v", err))
		return
	}
	log.LogInfo(fmt.Sprintf("Recorded run %s", display.ShortID(run.ID)))

	pruned, err := store.PruneRuns(ctx, keep)
	if err != nil {
		log.LogWarn(fmt.Sprintf("failed to prune history: %v", err))
		return
	}
	if pruned > 0 {
		log.LogDebug(fmt.Sprintf("Pruned %d old runs", pruned))
	}
}

// terminalWidth reports whether w is a terminal and, if known, its width
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := f.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return 0, false
	}
	if width, _, err := term.GetSize(int(fd)); err == nil && width > 0 {
		return width, true
	}
	return 0, true
}
