package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tableColumns = `id, restaurant_id, branch_id, number, capacity, status,
	accumulated_total, current_order_id, opened_at, active, created_at, updated_at`

func scanTable(row pgx.Row) (DiningTable, error) {
	var t DiningTable
	err := row.Scan(
		&t.ID, &t.RestaurantID, &t.BranchID, &t.Number, &t.Capacity, &t.Status,
		&t.AccumulatedTotal, &t.CurrentOrderID, &t.OpenedAt, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

type CreateTableParams struct {
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	Number       int32
	Capacity     int32
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO dining_tables (restaurant_id, branch_id, number, capacity)
		VALUES ($1, $2, $3, $4)
		RETURNING `+tableColumns,
		arg.RestaurantID, arg.BranchID, arg.Number, arg.Capacity)
	return scanTable(row)
}

type GetTableParams struct {
	ID       uuid.UUID
	BranchID uuid.UUID
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+tableColumns+`
		FROM dining_tables
		WHERE id = $1 AND branch_id = $2 AND active`,
		arg.ID, arg.BranchID)
	return scanTable(row)
}

// GetTableForUpdate takes a row-level exclusive lock; the table row is the
// serialization point for every session mutation on it.
func (q *Queries) GetTableForUpdate(ctx context.Context, arg GetTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+tableColumns+`
		FROM dining_tables
		WHERE id = $1 AND branch_id = $2 AND active
		FOR UPDATE`,
		arg.ID, arg.BranchID)
	return scanTable(row)
}

func (q *Queries) ListTables(ctx context.Context, branchID uuid.UUID) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+tableColumns+`
		FROM dining_tables
		WHERE branch_id = $1 AND active
		ORDER BY number`,
		branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []DiningTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

type UpdateTableSessionParams struct {
	ID               uuid.UUID
	Status           string
	AccumulatedTotal pgtype.Numeric
	CurrentOrderID   pgtype.UUID
	OpenedAt         pgtype.Timestamptz
}

// UpdateTableSession rewrites the whole session slice of the row: status,
// order reference, total mirror and opened-at move together so state and
// total can never drift apart.
func (q *Queries) UpdateTableSession(ctx context.Context, arg UpdateTableSessionParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE dining_tables
		SET status = $2,
		    accumulated_total = $3,
		    current_order_id = $4,
		    opened_at = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+tableColumns,
		arg.ID, arg.Status, arg.AccumulatedTotal, arg.CurrentOrderID, arg.OpenedAt)
	return scanTable(row)
}

type UpdateTableTotalParams struct {
	ID               uuid.UUID
	AccumulatedTotal pgtype.Numeric
}

func (q *Queries) UpdateTableTotal(ctx context.Context, arg UpdateTableTotalParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE dining_tables
		SET accumulated_total = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+tableColumns,
		arg.ID, arg.AccumulatedTotal)
	return scanTable(row)
}

// DeactivateTable soft-deactivates a FREE table. Historical orders keep
// referencing it, so rows are never hard-deleted.
func (q *Queries) DeactivateTable(ctx context.Context, arg GetTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE dining_tables
		SET active = false, updated_at = now()
		WHERE id = $1 AND branch_id = $2 AND active AND status = 'FREE'
		RETURNING `+tableColumns,
		arg.ID, arg.BranchID)
	return scanTable(row)
}
