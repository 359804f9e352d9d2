package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"go-auth-service/internal/model"
)

const maxRetries = 3

// withRetry retries transient store failures with exponential backoff, then
// surfaces them as ErrStoreUnavailable. Semantic errors (no rows, unique
// violations) pass through untouched on the first attempt.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(50*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if opErr := op(ctx); opErr != nil {
			if isTransient(opErr) {
				return retry.RetryableError(opErr)
			}
			return opErr
		}
		return nil
	})
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return err
}

func isTransient(err error) bool {
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. Class 57: operator intervention
		// (shutdown, cancel), seen during failovers.
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57")
	}

	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
