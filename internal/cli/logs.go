package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/raidreview/internal/config"
	"github.com/harun/raidreview/internal/logger"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and prune session log files",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session log files, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runLogsList,
}

var logsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run one retention pass over the log directory",
	Long: `Run one retention pass over the log directory.
When the directory holds more files than the configured maximum, the oldest
file is deleted. At most one file is removed per run.`,
	Args: cobra.NoArgs,
	RunE: runLogsPrune,
}

func init() {
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsPruneCmd)
	rootCmd.AddCommand(logsCmd)
}

func newRetention(cfg *config.Config) *logger.Retention {
	return logger.NewRetention(logger.NewOSStore(), cfg.Logging.Directory, cfg.Logging.MaximumLogFiles)
}

func runLogsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names, err := newRetention(cfg).Sorted()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "No log files in %s\n", cfg.Logging.Directory)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tCREATED")
	for _, name := range names {
		created := "unknown"
		if millis, err := logger.ParseSessionTimestamp(name); err == nil {
			created = time.UnixMilli(millis).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\n", name, created)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d file(s), maximum %d\n", len(names), cfg.Logging.MaximumLogFiles)
	return nil
}

func runLogsPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := newRetention(cfg).Enforce()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range result.Skipped {
		fmt.Fprintf(out, "Skipping unrecognized log file name '%s'\n", name)
	}

	if result.Evicted == "" {
		fmt.Fprintf(out, "Nothing to prune (%d file(s), maximum %d)\n", result.Count, cfg.Logging.MaximumLogFiles)
		return nil
	}

	fmt.Fprintf(out, "Deleted oldest log file '%s'\n", result.Evicted)
	return nil
}
