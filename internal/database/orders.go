package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, branch_id, table_id, order_number,
	service_type, status, notes, total_amount, opened_at, closed_at,
	cancel_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.BranchID, &o.TableID, &o.OrderNumber,
		&o.ServiceType, &o.Status, &o.Notes, &o.TotalAmount, &o.OpenedAt,
		&o.ClosedAt, &o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// GetNextOrderNumber derives the next per-branch sequence number from the
// stored VTA-NNN order numbers. Concurrent callers can collide; the unique
// constraint plus the caller's retry loop resolve that.
func (q *Queries) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	var next int32
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INT)), 0) + 1
		FROM orders
		WHERE branch_id = $1`,
		branchID).Scan(&next)
	return next, err
}

type CreateOrderParams struct {
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	TableID      pgtype.UUID
	OrderNumber  string
	ServiceType  string
	Notes        pgtype.Text
	CreatedBy    uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (restaurant_id, branch_id, table_id, order_number,
			service_type, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, 'OPEN', $6, $7)
		RETURNING `+orderColumns,
		arg.RestaurantID, arg.BranchID, arg.TableID, arg.OrderNumber,
		arg.ServiceType, arg.Notes, arg.CreatedBy)
	return scanOrder(row)
}

type GetOrderParams struct {
	ID       uuid.UUID
	BranchID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND branch_id = $2`,
		arg.ID, arg.BranchID)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for the duration of a ledger
// mutation. Lock the table row first when the order has one.
func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND branch_id = $2
		FOR UPDATE`,
		arg.ID, arg.BranchID)
	return scanOrder(row)
}

type ListOrdersParams struct {
	BranchID uuid.UUID
	Status   pgtype.Text
	Limit    int32
	Offset   int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE branch_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY opened_at DESC
		LIMIT $3 OFFSET $4`,
		arg.BranchID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	PrevStatus string
}

// UpdateOrderStatus is a compare-and-set: no rows means the status moved
// between read and write and the caller should report a conflict.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+orderColumns,
		arg.ID, arg.Status, arg.PrevStatus)
	return scanOrder(row)
}

type UpdateOrderTotalParams struct {
	ID          uuid.UUID
	TotalAmount pgtype.Numeric
}

func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET total_amount = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, arg.TotalAmount)
	return scanOrder(row)
}

func (q *Queries) CloseOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'CLOSED', closed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('OPEN', 'IN_PREPARATION', 'PENDING_PAYMENT')
		RETURNING `+orderColumns,
		id)
	return scanOrder(row)
}

type CancelOrderParams struct {
	ID           uuid.UUID
	CancelReason pgtype.Text
}

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'CANCELLED', closed_at = now(), cancel_reason = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('CLOSED', 'CANCELLED')
		RETURNING `+orderColumns,
		arg.ID, arg.CancelReason)
	return scanOrder(row)
}

// GetActiveOrderByTable returns the one non-terminal order attached to a
// table, if any. The partial unique index guarantees at most one exists.
func (q *Queries) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE table_id = $1 AND status IN ('OPEN', 'IN_PREPARATION', 'PENDING_PAYMENT')`,
		tableID)
	return scanOrder(row)
}

// --- Order items ---

const orderItemColumns = `id, order_id, product_id, product_name, quantity,
	unit_price, subtotal, notes, active, voided_at, created_at`

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
		&it.UnitPrice, &it.Subtotal, &it.Notes, &it.Active, &it.VoidedAt,
		&it.CreatedAt,
	)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Subtotal    pgtype.Numeric
	Notes       pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, quantity,
			unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderItemColumns,
		arg.OrderID, arg.ProductID, arg.ProductName, arg.Quantity,
		arg.UnitPrice, arg.Subtotal, arg.Notes)
	return scanOrderItem(row)
}

type OrderItemRefParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) GetOrderItem(ctx context.Context, arg OrderItemRefParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderItemColumns+`
		FROM order_items
		WHERE id = $1 AND order_id = $2`,
		arg.ID, arg.OrderID)
	return scanOrderItem(row)
}

// VoidOrderItem deactivates a line item; no rows means it does not exist or
// was already voided, which the caller tells apart with GetOrderItem.
func (q *Queries) VoidOrderItem(ctx context.Context, arg OrderItemRefParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE order_items
		SET active = false, voided_at = now()
		WHERE id = $1 AND order_id = $2 AND active
		RETURNING `+orderItemColumns,
		arg.ID, arg.OrderID)
	return scanOrderItem(row)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return q.listOrderItems(ctx, orderID, false)
}

func (q *Queries) ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return q.listOrderItems(ctx, orderID, true)
}

func (q *Queries) listOrderItems(ctx context.Context, orderID uuid.UUID, activeOnly bool) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderItemColumns+`
		FROM order_items
		WHERE order_id = $1 AND (NOT $2::bool OR active)
		ORDER BY created_at`,
		orderID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- Order item modifiers ---

const orderItemModifierColumns = `id, order_item_id, modifier_id, modifier_name,
	quantity, unit_price, created_at`

func scanOrderItemModifier(row pgx.Row) (OrderItemModifier, error) {
	var m OrderItemModifier
	err := row.Scan(
		&m.ID, &m.OrderItemID, &m.ModifierID, &m.ModifierName, &m.Quantity,
		&m.UnitPrice, &m.CreatedAt,
	)
	return m, err
}

type CreateOrderItemModifierParams struct {
	OrderItemID  uuid.UUID
	ModifierID   uuid.UUID
	ModifierName string
	Quantity     int32
	UnitPrice    pgtype.Numeric
}

func (q *Queries) CreateOrderItemModifier(ctx context.Context, arg CreateOrderItemModifierParams) (OrderItemModifier, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_item_modifiers (order_item_id, modifier_id,
			modifier_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orderItemModifierColumns,
		arg.OrderItemID, arg.ModifierID, arg.ModifierName, arg.Quantity, arg.UnitPrice)
	return scanOrderItemModifier(row)
}

func (q *Queries) ListOrderItemModifiersByOrderItem(ctx context.Context, orderItemID uuid.UUID) ([]OrderItemModifier, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderItemModifierColumns+`
		FROM order_item_modifiers
		WHERE order_item_id = $1
		ORDER BY created_at`,
		orderItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []OrderItemModifier
	for rows.Next() {
		m, err := scanOrderItemModifier(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// ListActiveOrderItemModifiersByOrder returns the attachments on active line
// items of an order; voided lines drop out of the recomputed total with their
// modifiers.
func (q *Queries) ListActiveOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItemModifier, error) {
	rows, err := q.db.Query(ctx, `
		SELECT m.id, m.order_item_id, m.modifier_id, m.modifier_name,
		       m.quantity, m.unit_price, m.created_at
		FROM order_item_modifiers m
		JOIN order_items i ON i.id = m.order_item_id
		WHERE i.order_id = $1 AND i.active
		ORDER BY m.created_at`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []OrderItemModifier
	for rows.Next() {
		m, err := scanOrderItemModifier(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
