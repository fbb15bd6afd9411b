package cli

import (
	"fmt"
	"os"

	"github.com/harun/raidreview/internal/config"
	"github.com/harun/raidreview/internal/daemon"
	"github.com/harun/raidreview/internal/logger"
	"github.com/harun/raidreview/internal/metrics"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the raidreview server",
	Long: `Start the raidreview server in the foreground.
A new log session is created on start and again whenever the first client
joins an idle server. The server runs until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	log := logger.New(daemon.LoggerConfig(cfg),
		logger.WithConsole(cmd.OutOrStdout()),
		logger.WithRecorder(m),
	)

	d, err := daemon.New(cfg, log, m)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return err
	}

	if cfg.WatchConfig {
		stop := watchConfig(d, log)
		defer stop()
	}

	return d.Wait(cmd.Context())
}

// watchConfig reloads the daemon whenever the config file changes and
// returns a function that stops watching. Without a config file on disk
// there is nothing to watch.
func watchConfig(d *daemon.Daemon, log *logger.Logger) func() {
	path := config.NewLoader(cfgFile).GetConfigPath()
	if _, err := os.Stat(path); err != nil {
		log.Debug(fmt.Sprintf("Not watching config file '%s': %v", path, err))
		return func() {}
	}

	w, err := config.NewWatcher(config.WatcherConfig{
		Path: path,
		OnChange: func(cfg *config.Config) {
			if debugLogs {
				cfg.Logging.EnableDebugLogs = true
			}
			if err := d.Reload(cfg); err != nil {
				d.GetLogger().Warn(fmt.Sprintf("Ignoring config change: %v", err))
			}
		},
		OnError: func(err error) {
			d.GetLogger().Warn(fmt.Sprintf("Ignoring config change: %v", err))
		},
	})
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		log.Warn(fmt.Sprintf("Failed to watch config file '%s': %v", path, err))
		return func() {}
	}

	log.Debug(fmt.Sprintf("Watching config file '%s' for changes", path))
	return func() { _ = w.Stop() }
}
