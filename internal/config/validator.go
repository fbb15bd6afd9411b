package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateMaximumLogFiles validates the retention cap
func (v *Validator) ValidateMaximumLogFiles(n int) error {
	if n < 0 {
		return fmt.Errorf("maximum_log_files must not be negative, got %d", n)
	}
	return nil
}

// ValidateLogDirectory validates the session log directory
func (v *Validator) ValidateLogDirectory(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("log directory cannot be empty when log files are enabled")
	}

	if filepath.Clean(dir) == string(filepath.Separator) {
		return fmt.Errorf("log directory cannot be the filesystem root")
	}

	return nil
}

// ValidateMetricsAddr validates a host:port listen address
func (v *Validator) ValidateMetricsAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics address cannot be empty")
	}

	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid metrics address %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid metrics port %q", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535")
	}

	return nil
}

// ValidatePruneSchedule validates a standard five-field cron expression or
// descriptor such as @hourly
func (v *Validator) ValidatePruneSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid prune_schedule %q: %w", expr, err)
	}
	return nil
}
