package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
)

// Row-lock waits are bounded so a contended table surfaces as a retryable
// conflict instead of an indefinite hang.
const lockTimeoutMillis = 3000

// TxBeginner starts a new database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// QuotaGate is the plan/subscription resource-limit collaborator, consulted
// before table/order creation. Its quota errors pass through unchanged.
type QuotaGate interface {
	CheckOrderOpen(ctx context.Context, restaurantID uuid.UUID) error
	CheckTableProvision(ctx context.Context, restaurantID uuid.UUID) error
}

// lockErr converts a lock_timeout expiry into a conflict the caller may
// retry; anything else passes through.
func lockErr(err error, what string) error {
	if database.IsLockNotAvailable(err) {
		return apperr.Conflict("%s is locked by another terminal", what)
	}
	return err
}
