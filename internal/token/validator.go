package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-auth-service/internal/cache"
	"go-auth-service/internal/model"
)

// Validator checks presented access tokens. Structural checks run before the
// revocation lookup so garbage input never reaches the blacklist. Validation
// is read-only; revocation writes happen elsewhere.
type Validator struct {
	secret      []byte
	issuer      string
	audience    string
	leeway      time.Duration
	revocations cache.RevocationList
	now         func() time.Time
}

func NewValidator(secret []byte, issuer string, audience string, leeway time.Duration, revocations cache.RevocationList) *Validator {
	return &Validator{
		secret:      secret,
		issuer:      issuer,
		audience:    audience,
		leeway:      leeway,
		revocations: revocations,
		now:         time.Now,
	}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate runs the rejection ladder: malformed, bad signature, wrong
// issuer/audience, expired, revoked. expectedType distinguishes access
// tokens from email-verification tokens.
func (v *Validator) Validate(ctx context.Context, tokenString string, expectedType string) (*model.Principal, error) {
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(tokenString, parsed, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	if parsed.TokenType != expectedType || parsed.ID == "" || parsed.Subject == "" {
		return nil, model.ErrTokenMalformed
	}

	roles, err := model.ParseRoles(parsed.Roles)
	if err != nil {
		return nil, model.ErrTokenMalformed
	}

	revoked, err := v.revocations.IsRevoked(ctx, parsed.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: revocation lookup: %w", model.ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, model.ErrTokenRevoked
	}

	return &model.Principal{
		UserID:    parsed.Subject,
		Email:     parsed.Email,
		FirstName: parsed.GivenName,
		LastName:  parsed.FamilyName,
		Roles:     roles,
		TokenID:   parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

func (v *Validator) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return v.secret, nil
}

// classifyParseError maps the library's joined errors onto the rejection
// taxonomy, preserving the check ordering.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return model.ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return model.ErrTokenWrongIssuer
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.ErrTokenExpired
	default:
		return model.ErrTokenMalformed
	}
}
