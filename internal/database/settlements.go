package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const settlementColumns = `id, order_id, payment_method, amount,
	amount_received, change_amount, processed_by, processed_at`

func scanSettlement(row pgx.Row) (Settlement, error) {
	var s Settlement
	err := row.Scan(
		&s.ID, &s.OrderID, &s.PaymentMethod, &s.Amount, &s.AmountReceived,
		&s.ChangeAmount, &s.ProcessedBy, &s.ProcessedAt,
	)
	return s, err
}

type CreateSettlementParams struct {
	OrderID        uuid.UUID
	PaymentMethod  string
	Amount         pgtype.Numeric
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	ProcessedBy    uuid.UUID
}

func (q *Queries) CreateSettlement(ctx context.Context, arg CreateSettlementParams) (Settlement, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO settlements (order_id, payment_method, amount,
			amount_received, change_amount, processed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+settlementColumns,
		arg.OrderID, arg.PaymentMethod, arg.Amount, arg.AmountReceived,
		arg.ChangeAmount, arg.ProcessedBy)
	return scanSettlement(row)
}

func (q *Queries) ListSettlementsByOrder(ctx context.Context, orderID uuid.UUID) ([]Settlement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE order_id = $1
		ORDER BY processed_at`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
