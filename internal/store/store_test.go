package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"auto_trader/internal/core"
	"auto_trader/internal/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trader.db")
	s, err := NewSQLiteStore(path, mock.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSession(now time.Time) *core.SessionSnapshot {
	return &core.SessionSnapshot{
		SavedAt:   now,
		ExpiresAt: now.Add(24 * time.Hour),
		Cookies: []core.Cookie{
			{Name: "sid", Value: "abc123", Domain: "play.example-game.com", Path: "/"},
		},
		LastURL:  "https://play.example-game.com/index.php",
		UserInfo: core.UserInfo{Name: "trader", Cash: 12345, Level: 42},
		Valid:    true,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	now := time.Now().UTC().Truncate(time.Second)
	original := sampleSession(now)
	require.NoError(t, s.SaveSession(ctx, original))

	loaded, err = s.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original.Cookies, loaded.Cookies)
	assert.Equal(t, original.UserInfo, loaded.UserInfo)
	assert.Equal(t, original.LastURL, loaded.LastURL)
	assert.True(t, loaded.Valid)
	assert.True(t, original.SavedAt.Equal(loaded.SavedAt))
	assert.True(t, original.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestSessionOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := sampleSession(now)
	require.NoError(t, s.SaveSession(ctx, first))

	second := sampleSession(now.Add(time.Hour))
	second.UserInfo.Name = "other"
	require.NoError(t, s.SaveSession(ctx, second))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other", loaded.UserInfo.Name)
}

func TestClearSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, sampleSession(time.Now())))
	require.NoError(t, s.ClearSession(ctx))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing again is fine.
	require.NoError(t, s.ClearSession(ctx))
}

func TestCycleRecordsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"c1", "c2", "c3"} {
		rec := &core.CycleRecord{
			ID:         id,
			StartedAt:  time.Now(),
			EndedAt:    time.Now(),
			Success:    i%2 == 0,
			TotalSpent: int64(100 * i),
		}
		require.NoError(t, s.AppendCycleRecord(ctx, rec))
	}

	records, err := s.CycleRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c1", records[0].ID)
	assert.Equal(t, "c3", records[2].ID)
	assert.Equal(t, int64(200), records[2].TotalSpent)
}

func TestPriceSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		err := s.AppendPriceSample(ctx, "Pain Killers",
			decimal.NewFromInt(int64(20+i)), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	// Appends run on the store's serial worker; wait for them to land.
	assert.Eventually(t, func() bool {
		prices, err := s.RecentPrices(ctx, "Pain Killers", 3)
		return err == nil && len(prices) == 3
	}, 2*time.Second, 10*time.Millisecond)

	prices, err := s.RecentPrices(ctx, "Pain Killers", 3)
	require.NoError(t, err)
	// Newest first.
	assert.True(t, prices[0].Equal(decimal.NewFromInt(24)))

	prices, err = s.RecentPrices(ctx, "Unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := sampleSession(time.Now())
	require.NoError(t, s.SaveSession(ctx, original))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, original.Cookies, loaded.Cookies)

	// Mutating the loaded copy does not affect the stored snapshot.
	loaded.Cookies[0].Value = "tampered"
	again, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", again.Cookies[0].Value)

	require.NoError(t, s.ClearSession(ctx))
	cleared, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, cleared)
}
