package cache

import (
	"context"
	"sync"
	"time"
)

// RevocationList is the access-token blacklist consulted by the validator.
// Entries carry the token's original expiry, so rejected jtis age out on
// their own and the set stays bounded.
//
// In a multi-instance deployment the list must be backed by a shared store
// (see RedisRevocationList) so a logout on one instance is visible to
// validation on every instance.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type MemoryRevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	if !until.After(l.now()) {
		return nil
	}

	l.mu.Lock()
	l.entries[jti] = until
	l.mu.Unlock()
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.RLock()
	until, exists := l.entries[jti]
	l.mu.RUnlock()

	return exists && l.now().Before(until), nil
}

// Sweep drops entries past their expiry and returns how many were removed.
func (l *MemoryRevocationList) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for jti, until := range l.entries {
		if !now.Before(until) {
			delete(l.entries, jti)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (l *MemoryRevocationList) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
