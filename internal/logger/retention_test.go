package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T, names ...string) *FSStore {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("logs", name), []byte("x\n"), 0644))
	}
	return NewFSStore(fs)
}

func TestRetentionEnforce(t *testing.T) {
	t.Run("evicts the smallest timestamp", func(t *testing.T) {
		store := seededStore(t, "100_raid_review.log", "50_raid_review.log", "200_raid_review.log")

		result, err := NewRetention(store, "logs", 2).Enforce()
		require.NoError(t, err)

		assert.Equal(t, 3, result.Count)
		assert.Equal(t, "50_raid_review.log", result.Evicted)

		names, err := store.List("logs")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"100_raid_review.log", "200_raid_review.log"}, names)
	})

	t.Run("orders numerically, not lexically", func(t *testing.T) {
		store := seededStore(t, "9_raid_review.log", "10_raid_review.log", "1000_raid_review.log")

		result, err := NewRetention(store, "logs", 1).Enforce()
		require.NoError(t, err)
		assert.Equal(t, "9_raid_review.log", result.Evicted)
	})

	t.Run("removes one file even when far over the cap", func(t *testing.T) {
		store := seededStore(t, "1_raid_review.log", "2_raid_review.log", "3_raid_review.log", "4_raid_review.log")

		result, err := NewRetention(store, "logs", 0).Enforce()
		require.NoError(t, err)
		assert.Equal(t, "1_raid_review.log", result.Evicted)

		names, err := store.List("logs")
		require.NoError(t, err)
		assert.Len(t, names, 3)
	})

	t.Run("at or under the cap", func(t *testing.T) {
		store := seededStore(t, "1_raid_review.log", "2_raid_review.log")

		result, err := NewRetention(store, "logs", 2).Enforce()
		require.NoError(t, err)
		assert.Empty(t, result.Evicted)
		assert.Equal(t, 2, result.Count)
	})

	t.Run("empty directory", func(t *testing.T) {
		result, err := NewRetention(seededStore(t), "logs", 0).Enforce()
		require.NoError(t, err)
		assert.Equal(t, RetentionResult{}, result)
	})

	t.Run("malformed names count but are never evicted", func(t *testing.T) {
		store := seededStore(t, "x_raid_review.log", "y_raid_review.log")

		result, err := NewRetention(store, "logs", 1).Enforce()
		require.NoError(t, err)
		assert.Empty(t, result.Evicted)
		assert.ElementsMatch(t, []string{"x_raid_review.log", "y_raid_review.log"}, result.Skipped)

		names, err := store.List("logs")
		require.NoError(t, err)
		assert.Len(t, names, 2)
	})

	t.Run("list failure", func(t *testing.T) {
		store := &failingStore{listErr: errors.New("io error")}

		_, err := NewRetention(store, "logs", 1).Enforce()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list log files")
	})

	t.Run("remove failure", func(t *testing.T) {
		store := &removeFailingStore{names: []string{"1_raid_review.log", "2_raid_review.log"}}

		result, err := NewRetention(store, "logs", 1).Enforce()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to evict 1_raid_review.log")
		assert.Empty(t, result.Evicted)
	})
}

func TestRetentionSorted(t *testing.T) {
	store := seededStore(t, "300_raid_review.log", "bad_raid_review.log", "20_raid_review.log", "1000_raid_review.log")

	names, err := NewRetention(store, "logs", 10).Sorted()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20_raid_review.log",
		"300_raid_review.log",
		"1000_raid_review.log",
		"bad_raid_review.log",
	}, names)
}

func TestSessionFileName(t *testing.T) {
	assert.Equal(t, "1714564800123_raid_review.log", SessionFileName(1714564800123))

	ts, err := ParseSessionTimestamp(SessionFileName(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)

	_, err = ParseSessionTimestamp("raid_review.log")
	assert.Error(t, err)
}

type removeFailingStore struct {
	names []string
}

func (s *removeFailingStore) List(string) ([]string, error) { return s.names, nil }
func (s *removeFailingStore) Remove(string, string) error   { return errors.New("busy") }
func (s *removeFailingStore) Append(string, string, string) error {
	return nil
}
