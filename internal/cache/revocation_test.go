package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationList(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()

	revoked, err := list.IsRevoked(ctx, "unknown-jti")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err = list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRevocationListEntriesAgeOut(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()

	base := time.Now()
	list.now = func() time.Time { return base }

	require.NoError(t, list.Revoke(ctx, "jti-1", base.Add(time.Minute)))

	revoked, err := list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	list.now = func() time.Time { return base.Add(2 * time.Minute) }

	revoked, err = list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRevocationListIgnoresPastExpiry(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()

	require.NoError(t, list.Revoke(ctx, "jti-1", time.Now().Add(-time.Minute)))

	list.mu.RLock()
	_, stored := list.entries["jti-1"]
	list.mu.RUnlock()
	assert.False(t, stored)
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()

	base := time.Now()
	list.now = func() time.Time { return base }

	require.NoError(t, list.Revoke(ctx, "expired", base.Add(time.Minute)))
	require.NoError(t, list.Revoke(ctx, "live", base.Add(time.Hour)))

	list.now = func() time.Time { return base.Add(10 * time.Minute) }

	assert.Equal(t, 1, list.Sweep())

	revoked, err := list.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	list.mu.RLock()
	remaining := len(list.entries)
	list.mu.RUnlock()
	assert.Equal(t, 1, remaining)
}
