package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-service/internal/model"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

const tokenColumns = `id, user_id, token_hash, expires_at, created_at, created_by_ip,
	revoked_at, revoked_by_ip, replaced_by_token_hash`

func scanToken(row pgx.Row) (model.RefreshToken, error) {
	var t model.RefreshToken
	var revokedByIP *string
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&t.CreatedByIP, &t.RevokedAt, &revokedByIP, &t.ReplacedByHash)
	if err != nil {
		return model.RefreshToken{}, err
	}
	if revokedByIP != nil {
		t.RevokedByIP = *revokedByIP
	}
	return t, nil
}

func (r *TokenRepository) Insert(ctx context.Context, t model.RefreshToken) error {
	err := withRetry(ctx, func(ctx context.Context) error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, created_by_ip)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt, t.CreatedByIP)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := withRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		t, scanErr = scanToken(r.pool.QueryRow(ctx,
			`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrRefreshNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

// Rotate atomically consumes the presented token and records its successor.
// The UPDATE is conditioned on the row still being active, so of any number
// of concurrent calls on the same token exactly one sees rows-affected 1;
// the rest get rotated=false and must treat the token as already consumed.
func (r *TokenRepository) Rotate(ctx context.Context, oldHash string, successor model.RefreshToken, revokedByIP string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = now(), revoked_by_ip = $2, replaced_by_token_hash = $3
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		oldHash, revokedByIP, successor.TokenHash)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, created_by_ip)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		successor.ID, successor.UserID, successor.TokenHash, successor.ExpiresAt,
		successor.CreatedAt, successor.CreatedByIP); err != nil {
		return false, fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rotation: %w", err)
	}
	return true, nil
}

// RevokeByHash marks a token revoked with no replacement (logout path).
func (r *TokenRepository) RevokeByHash(ctx context.Context, tokenHash string, revokedByIP string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = now(), revoked_by_ip = $2
		 WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, revokedByIP)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeChain revokes every still-active descendant of the given token by
// walking the replaced-by links. Used when a rotated-away token resurfaces.
func (r *TokenRepository) RevokeChain(ctx context.Context, fromHash string, revokedByIP string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`WITH RECURSIVE chain AS (
			SELECT token_hash, replaced_by_token_hash
			FROM refresh_tokens WHERE token_hash = $1
			UNION ALL
			SELECT rt.token_hash, rt.replaced_by_token_hash
			FROM refresh_tokens rt
			JOIN chain c ON rt.token_hash = c.replaced_by_token_hash
		 )
		 UPDATE refresh_tokens
		 SET revoked_at = now(), revoked_by_ip = $2
		 WHERE token_hash IN (SELECT token_hash FROM chain) AND revoked_at IS NULL`,
		fromHash, revokedByIP)
	if err != nil {
		return 0, fmt.Errorf("revoke token chain: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedByIP string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = now(), revoked_by_ip = $2
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, revokedByIP)
	if err != nil {
		return 0, fmt.Errorf("revoke all user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredBefore is the retention sweep. Rows stay well past expiry so
// reuse incidents remain traceable; only rows expired before the cutoff go.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
