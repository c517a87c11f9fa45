package stats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-trader/internal/config"
	"channel-trader/internal/store"
)

func TestCounter_WinRate(t *testing.T) {
	_, ok := Counter{}.WinRate()
	assert.False(t, ok)

	rate, ok := Counter{Wins: 3, Losses: 1}.WinRate()
	assert.True(t, ok)
	assert.Equal(t, 75.0, rate)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), Counter{Wins: 4, Losses: 2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"win_count":4,"loss_count":2}`, string(raw))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counter{Wins: 4, Losses: 2}, got)
}

func TestTracker_MissingAndCorruptFallBackToZero(t *testing.T) {
	dir := t.TempDir()

	missing := NewTracker(NewFileStore(filepath.Join(dir, "absent.json")), nil)
	assert.Equal(t, Counter{}, missing.Load(context.Background()))

	corruptPath := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o644))
	corrupt := NewTracker(NewFileStore(corruptPath), nil)
	assert.Equal(t, Counter{}, corrupt.Load(context.Background()))
}

func TestTracker_RecordCloseCountsWinAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"win_count":1,"loss_count":2}`), 0o644))

	tracker := NewTracker(NewFileStore(path), nil)
	tracker.Load(context.Background())

	c := tracker.RecordClose(context.Background())
	assert.Equal(t, Counter{Wins: 2, Losses: 2}, c)
	assert.Equal(t, c, tracker.Counter())

	reloaded, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c, reloaded)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (Counter, error) { return Counter{Wins: 9}, nil }
func (failingStore) Save(context.Context, Counter) error   { return errors.New("disk full") }

func TestTracker_SaveFailureKeepsMemory(t *testing.T) {
	tracker := NewTracker(failingStore{}, nil)
	tracker.Load(context.Background())

	c := tracker.RecordClose(context.Background())
	assert.Equal(t, int64(10), c.Wins)
	assert.Equal(t, int64(10), tracker.Counter().Wins)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, st)
	require.NoError(t, err)

	tracker := NewTracker(s, nil)
	assert.Equal(t, Counter{}, tracker.Load(ctx))

	tracker.RecordClose(ctx)
	tracker.RecordClose(ctx)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counter{Wins: 2}, got)
}
