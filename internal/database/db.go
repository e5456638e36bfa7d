// Package database is the hand-written query layer over pgx. It mirrors the
// Queries/DBTX shape so services can run the same methods against the pool or
// an open transaction.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to an open transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// SetLockTimeout bounds row-lock waits for the current transaction. Callers
// must be inside a transaction (SET LOCAL is a no-op otherwise).
func (q *Queries) SetLockTimeout(ctx context.Context, millis int) error {
	_, err := q.db.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", millis))
	return err
}

// IsLockNotAvailable reports whether err is a lock_timeout expiry (55P03),
// which callers treat as a retryable conflict.
func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation
// (23505) on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
