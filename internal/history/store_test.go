package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Episode{Episode: 1, Outcome: "defeat", TotalReward: -80, Steps: 300, Epsilon: 0.9}))
	require.NoError(t, s.Record(ctx, Episode{Episode: 2, Outcome: "victory", TotalReward: 120, Steps: 450, Epsilon: 0.85}))

	eps, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, eps, 2)

	assert.Equal(t, 2, eps[0].Episode, "newest first")
	assert.Equal(t, "victory", eps[0].Outcome)
	assert.NotEmpty(t, eps[0].ID, "row id filled in")
	assert.False(t, eps[0].CreatedAt.IsZero())
	assert.InDelta(t, -80, eps[1].TotalReward, 1e-9)
}

func TestRecentWinRate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rate, err := s.RecentWinRate(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, rate, "empty store")

	outcomes := []string{"victory", "defeat", "victory", "victory", "defeat"}
	for i, o := range outcomes {
		require.NoError(t, s.Record(ctx, Episode{Episode: i + 1, Outcome: o}))
	}

	rate, err = s.RecentWinRate(ctx, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rate, 1e-9)

	// Window narrower than history only sees the newest rows.
	rate, err = s.RecentWinRate(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
