package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
)

// LedgerStore defines the DB methods the order ledger needs.
// Satisfied by *database.Queries (and its WithTx variant).
type LedgerStore interface {
	SetLockTimeout(ctx context.Context, millis int) error
	GetTableForUpdate(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	GetProductForOrder(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderItemModifier(ctx context.Context, arg database.CreateOrderItemModifierParams) (database.OrderItemModifier, error)
	GetOrderItem(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error)
	VoidOrderItem(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error)
	ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListActiveOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	UpdateTableTotal(ctx context.Context, arg database.UpdateTableTotalParams) (database.DiningTable, error)
}

// NewLedgerStore creates a LedgerStore from a DBTX (pool or tx).
type NewLedgerStore func(db database.DBTX) LedgerStore

// Ledger owns line-item accumulation and total computation for open orders.
type Ledger struct {
	pool     TxBeginner
	newStore NewLedgerStore
}

func NewLedger(pool TxBeginner, newStore NewLedgerStore) *Ledger {
	return &Ledger{pool: pool, newStore: newStore}
}

// AddLineItemRequest is the validated input for one line-item addition.
type AddLineItemRequest struct {
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	Quantity     int32
	Note         string
	Modifiers    []RequestedModifier
}

// LineItemResult is the committed line item with the order (and table
// mirror, for dine-in) carrying the freshly recomputed total.
type LineItemResult struct {
	Order     database.Order
	Item      database.OrderItem
	Modifiers []database.OrderItemModifier
	Table     *database.DiningTable
}

// VoidResult is the order (and table mirror) after a soft removal.
type VoidResult struct {
	Order database.Order
	Item  database.OrderItem
	Table *database.DiningTable
}

// RecomputeTotal is the single source of truth for an order's total: the sum
// of active line-item subtotals (quantity × snapshotted unit price) plus
// active modifier extras. It never reads a cached total; the stored order
// total and the table mirror are refreshed from it.
func RecomputeTotal(items []database.OrderItem, mods []database.OrderItemModifier) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if !it.Active {
			continue
		}
		total = total.Add(numericToDecimal(it.UnitPrice).Mul(decimal.NewFromInt32(it.Quantity)))
	}
	for _, m := range mods {
		total = total.Add(numericToDecimal(m.UnitPrice).Mul(decimal.NewFromInt32(m.Quantity)))
	}
	return total
}

// AddLineItem validates the request, snapshots prices, persists the line
// item with its modifier attachments, and refreshes the order total and
// table mirror in one transaction.
func (l *Ledger) AddLineItem(ctx context.Context, req AddLineItemRequest) (*LineItemResult, error) {
	if req.Quantity <= 0 {
		return nil, apperr.Validation("quantity must be > 0")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, table, err := lockOrderAggregate(ctx, store, req.BranchID, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status != enum.OrderStatusOpen && order.Status != enum.OrderStatusInPreparation {
		return nil, apperr.InvalidState("order %s can no longer receive items", order.OrderNumber)
	}

	product, err := store.GetProductForOrder(ctx, database.GetProductParams{
		ID:       req.ProductID,
		BranchID: req.BranchID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	resolved, err := ResolveModifiers(ctx, store, product.ID, req.Modifiers)
	if err != nil {
		return nil, err
	}

	// Prices are snapshots: later catalog changes never touch this line.
	unitPrice := numericToDecimal(product.BasePrice)
	subtotal := unitPrice.Mul(decimal.NewFromInt32(req.Quantity))

	notes := pgtype.Text{}
	if req.Note != "" {
		notes = pgtype.Text{String: req.Note, Valid: true}
	}

	item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    req.Quantity,
		UnitPrice:   decimalToNumeric(unitPrice),
		Subtotal:    decimalToNumeric(subtotal),
		Notes:       notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create order item: %w", err)
	}

	attachments := make([]database.OrderItemModifier, 0, len(resolved))
	for _, rm := range resolved {
		oim, err := store.CreateOrderItemModifier(ctx, database.CreateOrderItemModifierParams{
			OrderItemID:  item.ID,
			ModifierID:   rm.Modifier.ID,
			ModifierName: rm.Modifier.Name,
			Quantity:     rm.Quantity,
			UnitPrice:    decimalToNumeric(rm.Price),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item modifier: %w", err)
		}
		attachments = append(attachments, oim)
	}

	order, table, err = refreshTotals(ctx, store, order, table)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &LineItemResult{Order: order, Item: item, Modifiers: attachments, Table: table}, nil
}

// VoidLineItem marks a line item inactive (kept for auditability) and
// refreshes the totals. Voiding an already-voided item is rejected, so a
// repeated void can never subtract twice.
func (l *Ledger) VoidLineItem(ctx context.Context, branchID, orderID, itemID uuid.UUID) (*VoidResult, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, table, err := lockOrderAggregate(ctx, store, branchID, orderID)
	if err != nil {
		return nil, err
	}

	if enum.IsTerminalOrderStatus(order.Status) {
		return nil, apperr.InvalidState("order %s can no longer be modified", order.OrderNumber)
	}

	item, err := store.VoidOrderItem(ctx, database.OrderItemRefParams{ID: itemID, OrderID: order.ID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("void order item: %w", err)
		}
		// No rows: either the item does not exist or it is already voided.
		existing, getErr := store.GetOrderItem(ctx, database.OrderItemRefParams{ID: itemID, OrderID: order.ID})
		if getErr != nil {
			if errors.Is(getErr, pgx.ErrNoRows) {
				return nil, apperr.NotFound("line item")
			}
			return nil, fmt.Errorf("get order item: %w", getErr)
		}
		if !existing.Active {
			return nil, apperr.InvalidState("line item is already voided")
		}
		return nil, fmt.Errorf("void order item: %w", err)
	}

	order, table, err = refreshTotals(ctx, store, order, table)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &VoidResult{Order: order, Item: item, Table: table}, nil
}

// allowedKitchenTransitions: the kitchen collaborator moves orders between
// OPEN and IN_PREPARATION; every other move goes through bill/settle/cancel.
var allowedKitchenTransitions = map[string][]string{
	enum.OrderStatusOpen:          {enum.OrderStatusInPreparation},
	enum.OrderStatusInPreparation: {enum.OrderStatusOpen},
}

// UpdateStatus handles the kitchen-facing status flips.
func (l *Ledger) UpdateStatus(ctx context.Context, branchID, orderID uuid.UUID, next string) (*database.Order, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, _, err := lockOrderAggregate(ctx, store, branchID, orderID)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(allowedKitchenTransitions, order.Status, next) {
		return nil, apperr.InvalidState("cannot transition order from %s to %s", order.Status, next)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         order.ID,
		Status:     next,
		PrevStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("order status changed, please retry")
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &updated, nil
}

func transitionAllowed(table map[string][]string, current, next string) bool {
	for _, s := range table[current] {
		if s == next {
			return true
		}
	}
	return false
}

// lockOrderAggregate takes the row locks for one ledger mutation: the table
// row first (when the order is attached to one), then the order row. The
// fixed order keeps concurrent terminals from deadlocking each other.
func lockOrderAggregate(ctx context.Context, store LedgerStore, branchID, orderID uuid.UUID) (database.Order, *database.DiningTable, error) {
	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, apperr.NotFound("order")
		}
		return database.Order{}, nil, fmt.Errorf("get order: %w", err)
	}

	var table *database.DiningTable
	if order.TableID.Valid {
		t, err := store.GetTableForUpdate(ctx, database.GetTableParams{
			ID:       uuid.UUID(order.TableID.Bytes),
			BranchID: branchID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.Order{}, nil, apperr.NotFound("table")
			}
			return database.Order{}, nil, lockErr(err, "table")
		}
		table = &t
	}

	// Re-read under lock: the unlocked read above only located the table.
	order, err = store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, apperr.NotFound("order")
		}
		return database.Order{}, nil, lockErr(err, "order")
	}

	return order, table, nil
}

// refreshTotals recomputes the order total from its active rows and writes
// it to both the order and (for dine-in) the table mirror inside the caller's
// transaction. State and total always move together.
func refreshTotals(ctx context.Context, store LedgerStore, order database.Order, table *database.DiningTable) (database.Order, *database.DiningTable, error) {
	items, err := store.ListActiveOrderItems(ctx, order.ID)
	if err != nil {
		return order, table, fmt.Errorf("list active items: %w", err)
	}
	mods, err := store.ListActiveOrderItemModifiersByOrder(ctx, order.ID)
	if err != nil {
		return order, table, fmt.Errorf("list active modifiers: %w", err)
	}

	total := RecomputeTotal(items, mods)

	order, err = store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:          order.ID,
		TotalAmount: decimalToNumeric(total),
	})
	if err != nil {
		return order, table, fmt.Errorf("update order total: %w", err)
	}

	if table != nil {
		t, err := store.UpdateTableTotal(ctx, database.UpdateTableTotalParams{
			ID:               table.ID,
			AccumulatedTotal: decimalToNumeric(total),
		})
		if err != nil {
			return order, table, fmt.Errorf("update table total: %w", err)
		}
		table = &t
	}

	return order, table, nil
}
