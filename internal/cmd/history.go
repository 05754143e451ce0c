package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nielsmadan/agentic-coding/internal/behavioral"
	"github.com/nielsmadan/agentic-coding/internal/config"
	"github.com/nielsmadan/agentic-coding/internal/display"
	"github.com/nielsmadan/agentic-coding/internal/history"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the 'review-logs history' command group
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scans",
		Long: `List scans recorded with 'review-logs scan --history', newest first.

Use 'history show <run-id>' to print the stored report of one run and
'history session <session-id>' to follow one session across runs. Run ids
may be shortened to any unique prefix.`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistorySessionCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report stored with a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().StringP("format", "f", behavioral.FormatJSON, "Report format: json, markdown, html")
	return cmd
}

func newHistorySessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session <session-id>",
		Short: "Show how one session scored in each recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistorySession,
	}
}

// openHistory opens the history database, returning nil when none exists yet
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dbPath, err := cfg.HistoryDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get history database path: %w", err)
	}
	if dbPath, err = config.ExpandHome(dbPath); err != nil {
		return nil, err
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(output, "No runs recorded yet. Use 'review-logs scan --history' to record one.")
		return nil
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	display.WriteRunsTable(output, runs)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	format, err := behavioral.ParseFormat(format)
	if err != nil {
		return err
	}

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("%s: %w", args[0], history.ErrRunNotFound)
	}
	defer store.Close()

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !run.Finished() || run.ReportJSON == "" {
		return fmt.Errorf("run %s did not finish; no report stored", display.ShortID(run.ID))
	}

	if format == behavioral.FormatJSON {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(run.ReportJSON), "", "  "); err != nil {
			return fmt.Errorf("decode stored report: %w", err)
		}
		pretty.WriteByte('\n')
		_, err := output.Write(pretty.Bytes())
		return err
	}

	var report behavioral.Report
	if err := json.Unmarshal([]byte(run.ReportJSON), &report); err != nil {
		return fmt.Errorf("decode stored report: %w", err)
	}
	return behavioral.ExportTo(&report, behavioral.StdoutPath, format, output)
}

func runHistorySession(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(output, "No runs recorded yet. Use 'review-logs scan --history' to record one.")
		return nil
	}
	defer store.Close()

	records, err := store.SessionHistory(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("session history: %w", err)
	}

	display.WriteSessionHistoryTable(output, records)
	return nil
}
