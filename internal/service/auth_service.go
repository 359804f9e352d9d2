package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/cache"
	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

// TokenStore persists refresh tokens. Rotate must be atomic with respect to
// concurrent calls on the same token: at most one caller gets rotated=true.
type TokenStore interface {
	Insert(ctx context.Context, t model.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, successor model.RefreshToken, revokedByIP string) (bool, error)
	RevokeByHash(ctx context.Context, tokenHash string, revokedByIP string) error
	RevokeChain(ctx context.Context, fromHash string, revokedByIP string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedByIP string) (int64, error)
}

// AuthService orchestrates the token lifecycle: login and registration mint
// pairs, refresh rotates them, logout and security actions revoke them.
type AuthService struct {
	credentials *CredentialService
	users       UserStore
	tokens      TokenStore
	issuer      *token.Issuer
	validator   *token.Validator
	revocations cache.RevocationList
	bus         event.Bus
	refreshTTL  time.Duration
	now         func() time.Time
}

func NewAuthService(
	credentials *CredentialService,
	users UserStore,
	tokens TokenStore,
	issuer *token.Issuer,
	validator *token.Validator,
	revocations cache.RevocationList,
	bus event.Bus,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		users:       users,
		tokens:      tokens,
		issuer:      issuer,
		validator:   validator,
		revocations: revocations,
		bus:         bus,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, meta RequestMeta) (model.RegisterResponse, error) {
	user, err := s.credentials.Register(ctx, req, meta)
	if err != nil {
		return model.RegisterResponse{}, err
	}

	verification, err := s.issuer.IssueVerificationToken(user)
	if err != nil {
		return model.RegisterResponse{}, err
	}

	return model.RegisterResponse{User: user.Profile(), VerificationToken: verification}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string, meta RequestMeta) (model.TokenPair, error) {
	user, err := s.credentials.VerifyCredentials(ctx, email, password, meta)
	if err != nil {
		return model.TokenPair{}, err
	}

	return s.issuePair(ctx, user, meta)
}

// Refresh implements single-use rotation. Presenting a token that was
// already rotated away is treated as theft: the whole descendant chain is
// revoked before the caller gets an error.
func (s *AuthService) Refresh(ctx context.Context, presented string, meta RequestMeta) (model.TokenPair, error) {
	hash := token.HashRefreshToken(presented)

	record, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		return model.TokenPair{}, err
	}

	if !record.Active(s.now()) {
		if record.Rotated() {
			return model.TokenPair{}, s.handleReuse(ctx, record, meta)
		}
		return model.TokenPair{}, model.ErrRefreshInactive
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !user.Active {
		return model.TokenPair{}, model.ErrAccountInactive
	}

	raw, newHash, err := token.NewRefreshToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	successor := s.newRecord(user.ID, newHash, meta)
	rotated, err := s.tokens.Rotate(ctx, hash, successor, meta.IP)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !rotated {
		// Lost the race: a concurrent call consumed the token first.
		return model.TokenPair{}, model.ErrRefreshInactive
	}

	access, expiresAt, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.bus.Publish(newEvent(event.TypeTokenRefreshed, meta.actor(user.ID, user.Email), "success", ""))

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt.Unix(),
		User:         user.Profile(),
	}, nil
}

func (s *AuthService) handleReuse(ctx context.Context, record model.RefreshToken, meta RequestMeta) error {
	revoked, err := s.tokens.RevokeChain(ctx, record.TokenHash, meta.IP)
	if err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypeReuseDetected, meta.actor(record.UserID, ""), "suspicious",
		fmt.Sprintf("rotated token presented again; revoked %d descendant tokens", revoked)))
	return model.ErrReuseDetected
}

// Logout revokes the presented refresh token and blacklists the access
// token's jti until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, principal *model.Principal, meta RequestMeta) error {
	if refreshToken != "" {
		if err := s.tokens.RevokeByHash(ctx, token.HashRefreshToken(refreshToken), meta.IP); err != nil {
			return err
		}
	}

	if principal != nil {
		if err := s.revocations.Revoke(ctx, principal.TokenID, principal.ExpiresAt); err != nil {
			return fmt.Errorf("%w: blacklist access token: %w", model.ErrStoreUnavailable, err)
		}
		s.bus.Publish(newEvent(event.TypeLoggedOut, meta.actor(principal.UserID, principal.Email), "success", ""))
	}

	return nil
}

// RevokeAllForUser kills every active session, e.g. after a password change
// or a detected compromise.
func (s *AuthService) RevokeAllForUser(ctx context.Context, userID string, meta RequestMeta) error {
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, meta.IP)
	if err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypeTokensRevoked, meta.actor(userID, ""), "success",
		fmt.Sprintf("revoked %d refresh tokens", revoked)))
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, principal *model.Principal, current string, next string, meta RequestMeta) error {
	if err := s.credentials.ChangePassword(ctx, principal.UserID, current, next, meta); err != nil {
		return err
	}

	// Outstanding sessions die with the old password.
	return s.RevokeAllForUser(ctx, principal.UserID, meta)
}

// Deactivate disables the account and revokes all its sessions.
func (s *AuthService) Deactivate(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.credentials.Deactivate(ctx, userID, meta); err != nil {
		return err
	}
	return s.RevokeAllForUser(ctx, userID, meta)
}

func (s *AuthService) VerifyEmail(ctx context.Context, verificationToken string, meta RequestMeta) error {
	principal, err := s.validator.Validate(ctx, verificationToken, token.TypeVerify)
	if err != nil {
		return err
	}

	if err := s.users.MarkEmailVerified(ctx, principal.UserID); err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypeEmailVerified, meta.actor(principal.UserID, principal.Email), "success", ""))
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.users.FindByID(ctx, userID)
}

// ValidateAccess is the per-request check resource servers run.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*model.Principal, error) {
	return s.validator.Validate(ctx, accessToken, token.TypeAccess)
}

func (s *AuthService) issuePair(ctx context.Context, user model.User, meta RequestMeta) (model.TokenPair, error) {
	access, expiresAt, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	raw, hash, err := token.NewRefreshToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.tokens.Insert(ctx, s.newRecord(user.ID, hash, meta)); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt.Unix(),
		User:         user.Profile(),
	}, nil
}

func (s *AuthService) newRecord(userID string, tokenHash string, meta RequestMeta) model.RefreshToken {
	now := s.now().UTC()
	return model.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   tokenHash,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: meta.IP,
	}
}

// IsAuthError reports whether the error should surface as a 401 without
// further detail.
func IsAuthError(err error) bool {
	return errors.Is(err, model.ErrInvalidCredentials) ||
		errors.Is(err, model.ErrAccountInactive) ||
		errors.Is(err, model.ErrAccountLocked) ||
		errors.Is(err, model.ErrRefreshNotFound) ||
		errors.Is(err, model.ErrRefreshInactive) ||
		errors.Is(err, model.ErrReuseDetected)
}
