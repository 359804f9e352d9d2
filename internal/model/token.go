package model

import "time"

// RefreshToken is the persisted record of one opaque refresh token. Only the
// SHA-256 hash of the token value is stored; the raw value exists client-side
// only. Rows are never hard-deleted while inside the retention window so the
// replaced-by chain stays traceable after a reuse incident.
type RefreshToken struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TokenHash      string     `json:"-"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedByIP    string     `json:"created_by_ip"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokedByIP    string     `json:"revoked_by_ip,omitempty"`
	ReplacedByHash *string    `json:"-"`
}

// Active: unexpired and unrevoked.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Rotated reports whether the token was consumed by a refresh call. A rotated
// token presented again is the reuse signal.
func (t RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.ReplacedByHash != nil
}

// Principal is the authenticated identity extracted from a valid access token.
type Principal struct {
	UserID    string    `json:"sub"`
	Email     string    `json:"email"`
	FirstName string    `json:"given_name"`
	LastName  string    `json:"family_name"`
	Roles     []Role    `json:"roles"`
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"-"`
}

type TokenPair struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresAt    int64   `json:"expires_at"`
	User         Profile `json:"user"`
}
