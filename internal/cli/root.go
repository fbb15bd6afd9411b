package cli

import (
	"fmt"

	"github.com/harun/raidreview/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile   string
	debugLogs bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "raidreview",
	Short: "raidreview - raid review server with session logging",
	Long: `raidreview runs the raid review server. Every message is printed to
the console with a [RAID-REVIEW] prefix and can also be appended to per-session
log files, keeping only a bounded number of them on disk.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.raidreview/raidreview.json)")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "print debug messages regardless of the config file")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the configuration named by --config and applies the
// global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if debugLogs {
		cfg.Logging.EnableDebugLogs = true
	}

	return cfg, nil
}
