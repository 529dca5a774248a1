package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeAt returns a store with a controllable clock.
func storeAt(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCreateAndGet(t *testing.T) {
	s, _ := storeAt(DefaultTTL)
	created := s.Create("tok")
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, created.CreatedAt.Add(DefaultTTL), created.ExpiresAt)

	got, err := s.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLazyExpiryOnRead(t *testing.T) {
	s, now := storeAt(DefaultTTL)
	s.Create("tok")

	*now = now.Add(DefaultTTL + time.Second)
	got, err := s.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestConfirmedSurvivesExpiryCheck(t *testing.T) {
	s, now := storeAt(DefaultTTL)
	s.Create("tok")
	_, err := s.UpdateStatus("tok", StatusScanned, nil)
	require.NoError(t, err)
	_, err = s.UpdateStatus("tok", StatusConfirmed, &UserInfo{UserID: "u1"})
	require.NoError(t, err)

	// Confirmed is terminal: passing the deadline must not flip it.
	*now = now.Add(2 * DefaultTTL)
	got, err := s.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.UserInfo)
	assert.Equal(t, "u1", got.UserInfo.UserID)
}

func TestBackwardTransitionRejected(t *testing.T) {
	s, _ := storeAt(DefaultTTL)
	s.Create("tok")
	_, err := s.UpdateStatus("tok", StatusConfirmed, nil)
	require.NoError(t, err)

	_, err = s.UpdateStatus("tok", StatusPending, nil)
	assert.ErrorIs(t, err, ErrStateConflict)
	_, err = s.UpdateStatus("tok", StatusScanned, nil)
	assert.ErrorIs(t, err, ErrStateConflict)

	got, err := s.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestUpdateExpiredRejected(t *testing.T) {
	s, now := storeAt(DefaultTTL)
	s.Create("tok")
	*now = now.Add(DefaultTTL + time.Minute)

	_, err := s.UpdateStatus("tok", StatusScanned, nil)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestUpdateUnknownToken(t *testing.T) {
	s, _ := storeAt(DefaultTTL)
	_, err := s.UpdateStatus("nope", StatusScanned, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _ := storeAt(DefaultTTL)
	s.Create("tok")
	assert.True(t, s.Delete("tok"))
	assert.False(t, s.Delete("tok"))
}

func TestCleanupExpired(t *testing.T) {
	s, now := storeAt(DefaultTTL)
	s.Create("old")

	*now = now.Add(DefaultTTL / 2)
	s.Create("fresh")

	// "old" expired at T+5m. One extra TTL of grace means it is only swept
	// once the clock passes T+10m.
	*now = now.Add(DefaultTTL + time.Minute) // T+8m30s
	assert.Equal(t, 0, s.CleanupExpired())

	*now = now.Add(2 * time.Minute) // T+10m30s
	assert.Equal(t, 1, s.CleanupExpired())
	assert.Equal(t, 1, s.Len())

	_, err := s.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(DefaultTTL)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tok := string(rune('a' + n%8))
			s.Create(tok)
			_, _ = s.Get(tok)
			_, _ = s.UpdateStatus(tok, StatusScanned, nil)
			s.CleanupExpired()
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 8)
}
