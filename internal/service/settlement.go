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

// SettlementStore defines the DB methods settlement and cancellation need.
type SettlementStore interface {
	SetLockTimeout(ctx context.Context, millis int) error
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetTableForUpdate(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	UpdateTableSession(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error)
	ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListActiveOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	CreateSettlement(ctx context.Context, arg database.CreateSettlementParams) (database.Settlement, error)
	CloseOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
}

type NewSettlementStore func(db database.DBTX) SettlementStore

// Settler closes the lifecycle of an order: settle-and-close on payment, or
// cancel. Both release the table in the same transaction.
type Settler struct {
	pool     TxBeginner
	newStore NewSettlementStore
}

func NewSettler(pool TxBeginner, newStore NewSettlementStore) *Settler {
	return &Settler{pool: pool, newStore: newStore}
}

type SettleParams struct {
	OrderID        uuid.UUID
	BranchID       uuid.UUID
	PaymentMethod  string
	AmountReceived decimal.Decimal
	ProcessedBy    uuid.UUID
}

// SettleResult reports everything the terminal needs to print the receipt:
// the closed order, the settlement record, and the released table if the
// order was dine-in.
type SettleResult struct {
	Order      database.Order
	Settlement database.Settlement
	Table      *database.DiningTable
}

// Settle records payment against an order and closes it. The charged amount
// is recomputed from the active line items inside the transaction, never
// taken from a stored column or from the request.
func (s *Settler) Settle(ctx context.Context, p SettleParams) (*SettleResult, error) {
	if !enum.IsValidPaymentMethod(p.PaymentMethod) {
		return nil, apperr.Validation("invalid payment_method %q", p.PaymentMethod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, table, err := lockOrderAndTable(ctx, store, p.BranchID, p.OrderID)
	if err != nil {
		return nil, err
	}

	if enum.IsTerminalOrderStatus(order.Status) {
		return nil, apperr.InvalidState("order %s is already %s", order.OrderNumber, order.Status)
	}

	items, err := store.ListActiveOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	mods, err := store.ListActiveOrderItemModifiersByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list active modifiers: %w", err)
	}
	total := RecomputeTotal(items, mods)

	received := p.AmountReceived
	change := decimal.Zero
	if p.PaymentMethod == enum.PaymentMethodCash {
		if received.LessThan(total) {
			return nil, apperr.Validation("amount received %s is less than total %s",
				received.StringFixed(2), total.StringFixed(2))
		}
		change = received.Sub(total)
	} else {
		// Non-cash captures exactly the total.
		received = total
	}

	if _, err := store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:          order.ID,
		TotalAmount: decimalToNumeric(total),
	}); err != nil {
		return nil, fmt.Errorf("update order total: %w", err)
	}

	settlement, err := store.CreateSettlement(ctx, database.CreateSettlementParams{
		OrderID:        order.ID,
		PaymentMethod:  p.PaymentMethod,
		Amount:         decimalToNumeric(total),
		AmountReceived: decimalToNumeric(received),
		ChangeAmount:   decimalToNumeric(change),
		ProcessedBy:    p.ProcessedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create settlement: %w", err)
	}

	order, err = store.CloseOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("order status changed, please retry")
		}
		return nil, fmt.Errorf("close order: %w", err)
	}

	result := &SettleResult{Order: order, Settlement: settlement}
	if table != nil {
		freed, err := freeTable(ctx, store, *table)
		if err != nil {
			return nil, err
		}
		result.Table = &freed
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

type CancelParams struct {
	OrderID  uuid.UUID
	BranchID uuid.UUID
	Reason   string
	// Override lets a manager cancel an order the guest already asked the
	// bill for.
	Override bool
}

type CancelResult struct {
	Order database.Order
	Table *database.DiningTable
}

// Cancel voids an entire order and releases its table. An order in
// PENDING_PAYMENT refuses plain cancellation: the guest expects to pay, so
// bailing out needs an explicit override.
func (s *Settler) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, table, err := lockOrderAndTable(ctx, store, p.BranchID, p.OrderID)
	if err != nil {
		return nil, err
	}

	if enum.IsTerminalOrderStatus(order.Status) {
		return nil, apperr.InvalidState("order %s is already %s", order.OrderNumber, order.Status)
	}
	if order.Status == enum.OrderStatusPendingPayment && !p.Override {
		return nil, apperr.Conflict("order %s is pending payment; cancellation requires override", order.OrderNumber)
	}

	reason := pgtype.Text{}
	if p.Reason != "" {
		reason = pgtype.Text{String: p.Reason, Valid: true}
	}
	order, err = store.CancelOrder(ctx, database.CancelOrderParams{ID: order.ID, CancelReason: reason})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("order status changed, please retry")
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	result := &CancelResult{Order: order}
	if table != nil {
		freed, err := freeTable(ctx, store, *table)
		if err != nil {
			return nil, err
		}
		result.Table = &freed
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// lockOrderAndTable acquires row locks in the fixed table-then-order order.
// Returns a nil table for non-dine-in orders.
func lockOrderAndTable(ctx context.Context, store SettlementStore, branchID, orderID uuid.UUID) (database.Order, *database.DiningTable, error) {
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

	order, err = store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		return database.Order{}, nil, lockErr(err, "order")
	}
	return order, table, nil
}

// freeTable returns a table to FREE with a zeroed mirror and no order
// reference. Null CurrentOrderID and null OpenedAt mark the idle state.
func freeTable(ctx context.Context, store SettlementStore, table database.DiningTable) (database.DiningTable, error) {
	freed, err := store.UpdateTableSession(ctx, database.UpdateTableSessionParams{
		ID:               table.ID,
		Status:           enum.TableStatusFree,
		AccumulatedTotal: zeroNumeric(),
	})
	if err != nil {
		return database.DiningTable{}, fmt.Errorf("free table: %w", err)
	}
	return freed, nil
}
