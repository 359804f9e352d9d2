package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
)

// fakeUserStore is an in-memory UserStore with the same semantics as the
// Postgres repository.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrEmailTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) update(id string, mutate func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[id]
	if !exists {
		return model.ErrUserNotFound
	}
	mutate(&u)
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	return s.update(userID, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (s *fakeUserStore) UpdateRoles(_ context.Context, userID string, roles []model.Role) error {
	return s.update(userID, func(u *model.User) { u.Roles = roles })
}

func (s *fakeUserStore) SetActive(_ context.Context, userID string, active bool) error {
	return s.update(userID, func(u *model.User) { u.Active = active })
}

func (s *fakeUserStore) MarkEmailVerified(_ context.Context, userID string) error {
	return s.update(userID, func(u *model.User) { u.EmailVerified = true })
}

func (s *fakeUserStore) RecordLogin(_ context.Context, userID string) error {
	now := time.Now().UTC()
	return s.update(userID, func(u *model.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
	})
}

func (s *fakeUserStore) IncrementFailedAttempts(_ context.Context, userID string) (int, error) {
	var attempts int
	err := s.update(userID, func(u *model.User) {
		u.FailedLoginAttempts++
		attempts = u.FailedLoginAttempts
	})
	return attempts, err
}

func (s *fakeUserStore) LockAccount(_ context.Context, userID string, until time.Time) error {
	return s.update(userID, func(u *model.User) { u.LockedUntil = &until })
}

func (s *fakeUserStore) Unlock(_ context.Context, userID string) error {
	return s.update(userID, func(u *model.User) {
		u.LockedUntil = nil
		u.FailedLoginAttempts = 0
	})
}

func (s *fakeUserStore) List(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

// fakeTokenStore mirrors the repository's rotation semantics, including the
// at-most-one-winner guarantee under concurrent Rotate calls.
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[string]model.RefreshToken{}}
}

func (s *fakeTokenStore) Insert(_ context.Context, t model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[t.TokenHash] = t
	return nil
}

func (s *fakeTokenStore) FindByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[tokenHash]
	if !exists {
		return model.RefreshToken{}, model.ErrRefreshNotFound
	}
	return t, nil
}

func (s *fakeTokenStore) Rotate(_ context.Context, oldHash string, successor model.RefreshToken, revokedByIP string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.tokens[oldHash]
	if !exists || !old.Active(time.Now()) {
		return false, nil
	}

	now := time.Now().UTC()
	replacedBy := successor.TokenHash
	old.RevokedAt = &now
	old.RevokedByIP = revokedByIP
	old.ReplacedByHash = &replacedBy
	s.tokens[oldHash] = old
	s.tokens[successor.TokenHash] = successor
	return true, nil
}

func (s *fakeTokenStore) RevokeByHash(_ context.Context, tokenHash string, revokedByIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[tokenHash]
	if !exists {
		return model.ErrRefreshNotFound
	}
	if t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
		t.RevokedByIP = revokedByIP
		s.tokens[tokenHash] = t
	}
	return nil
}

func (s *fakeTokenStore) RevokeChain(_ context.Context, fromHash string, revokedByIP string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	hash := fromHash
	for {
		t, exists := s.tokens[hash]
		if !exists {
			break
		}
		if t.RevokedAt == nil {
			now := time.Now().UTC()
			t.RevokedAt = &now
			t.RevokedByIP = revokedByIP
			s.tokens[hash] = t
			revoked++
		}
		if t.ReplacedByHash == nil {
			break
		}
		hash = *t.ReplacedByHash
	}
	return revoked, nil
}

func (s *fakeTokenStore) RevokeAllForUser(_ context.Context, userID string, revokedByIP string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	now := time.Now().UTC()
	for hash, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			t.RevokedByIP = revokedByIP
			s.tokens[hash] = t
			revoked++
		}
	}
	return revoked, nil
}

// drainEvents empties a subscriber channel into a slice. Publish writes
// synchronously into the buffer, so everything published before the call is
// visible.
func drainEvents(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []event.Event, t event.Type) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}
