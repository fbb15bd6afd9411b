package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/harun/raidreview/internal/config"
	"github.com/harun/raidreview/internal/daemon"
	"github.com/spf13/cobra"
)

const statusQueryTimeout = 2 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Show the current status of the raidreview server.
When metrics are enabled the running server is also asked for its current
log session and connected clients.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pidFile := daemon.PIDFilePath(cfg.DataDir)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)

	// PID file modification time approximates the start time
	if fileInfo, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}

	if cfg.Metrics.Enabled {
		if status, err := queryStatus(cfg); err == nil {
			printServerStatus(out, status)
		}
	}

	return nil
}

func queryStatus(cfg *config.Config) (*daemon.Status, error) {
	client := &http.Client{Timeout: statusQueryTimeout}

	resp, err := client.Get("http://" + cfg.Metrics.Addr + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}

	return &status, nil
}

func printServerStatus(out io.Writer, status *daemon.Status) {
	fmt.Fprintf(out, "Clients: %d\n", status.Clients)
	if status.SessionFile != "" {
		fmt.Fprintf(out, "Session log: %s\n", status.SessionFile)
	} else {
		fmt.Fprintln(out, "Session log: none")
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
