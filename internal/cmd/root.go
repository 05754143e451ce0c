package cmd

import (
	"fmt"

	"github.com/nielsmadan/agentic-coding/internal/config"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for review-logs
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review-logs",
		Short: "Extract behavioral signals from Claude Code session logs",
		Long: `review-logs scans Claude Code session transcripts under ~/.claude/projects
and reports how the agent behaved: failing commands, permission denials,
user rejections, retry loops and misbehavior patterns such as write
attempts on git or misuse of gh api.

The report is written as JSON (default), Markdown or HTML. Runs can be
recorded in a local history database and compared with earlier scans.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: $REVIEW_LOGS_HOME/config.yaml)")

	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig loads the config named by --config, or the default one
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the review-logs version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "review-logs version %s\n", Version)
		},
	}
}
