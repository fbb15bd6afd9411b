package logger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RetentionResult describes a single retention pass
type RetentionResult struct {
	Count   int      // entries found in the log directory
	Evicted string   // file removed, empty when nothing was removed
	Skipped []string // names whose timestamp prefix could not be parsed
}

// Retention keeps the number of session log files at or below a cap
type Retention struct {
	store    Store
	dir      string
	maxFiles int
}

// NewRetention creates a retention manager for dir
func NewRetention(store Store, dir string, maxFiles int) *Retention {
	return &Retention{
		store:    store,
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Enforce removes the oldest session file when the directory holds more
// than maxFiles entries. At most one file is removed per call.
//
// Names that do not start with an integer timestamp still count toward
// the cap but are never eviction candidates.
func (r *Retention) Enforce() (RetentionResult, error) {
	names, err := r.store.List(r.dir)
	if err != nil {
		return RetentionResult{}, fmt.Errorf("failed to list log files: %w", err)
	}

	result := RetentionResult{Count: len(names)}
	if len(names) <= r.maxFiles {
		return result, nil
	}

	type entry struct {
		name      string
		timestamp int64
	}

	var entries []entry
	for _, name := range names {
		ts, err := ParseSessionTimestamp(name)
		if err != nil {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		entries = append(entries, entry{name: name, timestamp: ts})
	}

	if len(entries) == 0 {
		return result, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})

	oldest := entries[0].name
	if err := r.store.Remove(r.dir, oldest); err != nil {
		return result, fmt.Errorf("failed to evict %s: %w", oldest, err)
	}
	result.Evicted = oldest

	return result, nil
}

// Sorted lists the session files oldest first, followed by any names
// without a parseable timestamp.
func (r *Retention) Sorted() ([]string, error) {
	names, err := r.store.List(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	sort.SliceStable(names, func(i, j int) bool {
		a, errA := ParseSessionTimestamp(names[i])
		b, errB := ParseSessionTimestamp(names[j])
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a < b
		}
	})
	return names, nil
}

// SessionFileName builds the file name for a session started at unixMillis
func SessionFileName(unixMillis int64) string {
	return strconv.FormatInt(unixMillis, 10) + SessionFileSuffix
}

// ParseSessionTimestamp returns the integer prefix of a session file name
func ParseSessionTimestamp(name string) (int64, error) {
	prefix, _, _ := strings.Cut(name, "_")
	ts, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session file name %q: %w", name, err)
	}
	return ts, nil
}
