package cli

import (
	"fmt"

	"github.com/harun/raidreview/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up raidreview.
The wizard asks for the log file, debug and metrics settings and saves them
to the config file.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	wizard := config.NewWizard(cmd.InOrStdin(), out)

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	// Reload so defaults for empty directories are filled in and validated
	if _, err := loader.Load(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nYou can now start the server with: raidreview start")

	return nil
}
