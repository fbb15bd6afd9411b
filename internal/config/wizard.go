package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for every logging option, starting from the defaults. An empty
// answer keeps the default.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== raidreview Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	var err error

	if cfg.Logging.EnableLogFiles, err = w.askBool("Write session log files", cfg.Logging.EnableLogFiles); err != nil {
		return nil, err
	}

	if cfg.Logging.EnableLogFiles {
		for {
			n, err := w.askInt("Maximum number of log files to keep", cfg.Logging.MaximumLogFiles)
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateMaximumLogFiles(n); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Logging.MaximumLogFiles = n
			break
		}

		fmt.Fprint(w.out, "Log directory (press Enter for <data_dir>/logs): ")
		dir, err := w.readLine()
		if err != nil {
			return nil, err
		}
		cfg.Logging.Directory = dir
	}

	if cfg.Logging.EnableDebugLogs, err = w.askBool("Print debug messages", cfg.Logging.EnableDebugLogs); err != nil {
		return nil, err
	}

	if cfg.Logging.EnableLogFiles {
		if cfg.Logging.EnableVerboseLogFiles, err = w.askBool("Also write debug and warning messages to log files", cfg.Logging.EnableVerboseLogFiles); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Enabled, err = w.askBool("Expose Prometheus metrics", cfg.Metrics.Enabled); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		for {
			fmt.Fprintf(w.out, "Metrics listen address [%s]: ", cfg.Metrics.Addr)
			addr, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if addr == "" {
				break
			}
			if err := validator.ValidateMetricsAddr(addr); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Metrics.Addr = addr
			break
		}
	}

	return cfg, nil
}

func (w *Wizard) askBool(prompt string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	for {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, hint)
		answer, err := w.readLine()
		if err != nil {
			return false, err
		}

		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(w.out, "Please answer y or n")
	}
}

func (w *Wizard) askInt(prompt string, def int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", prompt, def)
		answer, err := w.readLine()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}

		n, err := strconv.Atoi(answer)
		if err == nil {
			return n, nil
		}
		fmt.Fprintf(w.out, "Error: %q is not a number\n", answer)
	}
}

// readLine reads one trimmed line. A final line without a newline is
// accepted; running out of input is an error.
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
