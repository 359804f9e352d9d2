package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const (
	TypeAccess = "access"
	TypeVerify = "verify"

	refreshTokenBytes = 32
)

type claims struct {
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	TokenType  string   `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer mints signed access tokens and opaque refresh tokens. It is a pure
// function of its inputs, the signing key and the clock; persistence of
// refresh tokens belongs to the rotation manager.
type Issuer struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	verifyTTL time.Duration
	now       func() time.Time
}

func NewIssuer(secret []byte, issuer string, audience string, accessTTL time.Duration, verifyTTL time.Duration) *Issuer {
	return &Issuer{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		verifyTTL: verifyTTL,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Tests use this to drive expiry.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssueAccessToken signs a short-lived token for the user. The jti is random
// per call so revocation tracking survives process restarts.
func (i *Issuer) IssueAccessToken(user model.User) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)

	signed, err := i.sign(claims{
		Email:      user.Email,
		GivenName:  user.FirstName,
		FamilyName: user.LastName,
		Roles:      model.RoleStrings(user.Roles),
		TokenType:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// IssueVerificationToken signs the token a user presents to confirm their
// email address.
func (i *Issuer) IssueVerificationToken(user model.User) (string, error) {
	now := i.now()

	return i.sign(claims{
		Email:     user.Email,
		TokenType: TypeVerify,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.verifyTTL)),
		},
	})
}

func (i *Issuer) sign(c claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// NewRefreshToken returns a fresh opaque refresh token and the hash under
// which it is persisted. The raw value is never stored server-side.
func NewRefreshToken() (string, string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}

	value := base64.RawURLEncoding.EncodeToString(raw)
	return value, HashRefreshToken(value), nil
}

// HashRefreshToken maps a presented refresh token to its storage key.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
