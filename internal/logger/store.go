package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// SessionFileSuffix is the fixed suffix of every session log file name
const SessionFileSuffix = "_raid_review.log"

// Store is the I/O boundary used for session log files
type Store interface {
	// List returns the session log file names found directly in dir
	List(dir string) ([]string, error)
	// Remove deletes name from dir
	Remove(dir, name string) error
	// Append appends line to dir/name, creating both if absent
	Append(dir, name, line string) error
}

// FSStore implements Store on top of an afero filesystem
type FSStore struct {
	fs afero.Fs
}

// NewFSStore creates a store backed by fs
func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewOSStore creates a store backed by the host filesystem
func NewOSStore() *FSStore {
	return NewFSStore(afero.NewOsFs())
}

// List returns regular files carrying the session suffix. A missing
// directory lists as empty.
func (s *FSStore) List(dir string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var names []string
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if strings.HasSuffix(info.Name(), SessionFileSuffix) {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// Remove deletes a single log file
func (s *FSStore) Remove(dir, name string) error {
	if err := s.fs.Remove(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to remove log file: %w", err)
	}
	return nil
}

// Append writes line at the end of the log file
func (s *FSStore) Append(dir, name, line string) error {
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := s.fs.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if _, err := file.WriteString(line); err != nil {
		file.Close()
		return fmt.Errorf("failed to write log file: %w", err)
	}

	return file.Close()
}

// Fs returns the underlying filesystem
func (s *FSStore) Fs() afero.Fs {
	return s.fs
}
