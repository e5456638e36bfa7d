package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
)

const maxOrderNumberRetries = 3

const orderNumberUniqueConstraint = "orders_branch_id_order_number_key"

// SessionStore defines the DB methods the table session state machine needs.
// Satisfied by *database.Queries (and its WithTx variant).
type SessionStore interface {
	SetLockTimeout(ctx context.Context, millis int) error
	GetTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	GetTableForUpdate(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	UpdateTableSession(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error)
	UpdateTableTotal(ctx context.Context, arg database.UpdateTableTotalParams) (database.DiningTable, error)
	GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListActiveOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemModifiersByOrderItem(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemModifier, error)
}

// NewSessionStore creates a SessionStore from a DBTX (pool or tx).
type NewSessionStore func(db database.DBTX) SessionStore

// Session owns a table's occupancy state and its link to at most one open
// order. Every transition that changes the accumulated total commits in the
// same transaction as the ledger write that produced it.
type Session struct {
	pool     TxBeginner
	newStore NewSessionStore
	gate     QuotaGate
}

func NewSession(pool TxBeginner, newStore NewSessionStore, gate QuotaGate) *Session {
	return &Session{pool: pool, newStore: newStore, gate: gate}
}

// TableCycleResult pairs the table with the order a transition attached or
// kept; results always carry state and total together.
type TableCycleResult struct {
	Table database.DiningTable
	Order database.Order
}

// Snapshot is the read model for one table: its state, the attached order if
// any, and that order's line items with their attachments.
type Snapshot struct {
	Table     database.DiningTable
	Order     *database.Order
	Items     []database.OrderItem
	Modifiers map[uuid.UUID][]database.OrderItemModifier
}

// OpenTable transitions a FREE table to OCCUPIED, creating the attached
// order. Exactly one of N concurrent calls on the same table wins; the rest
// get a conflict from the row lock plus state check.
func (s *Session) OpenTable(ctx context.Context, restaurantID, branchID, tableID, openedBy uuid.UUID) (*TableCycleResult, error) {
	// Quota refusals happen before any mutation and pass through unchanged.
	if err := s.gate.CheckOrderOpen(ctx, restaurantID); err != nil {
		return nil, err
	}
	return s.seatTableWithRetry(ctx, branchID, tableID, openedBy, enum.TableStatusFree)
}

// SeatReservation turns a RESERVED table into an OCCUPIED one with a fresh
// order, driven by the external reservation collaborator.
func (s *Session) SeatReservation(ctx context.Context, restaurantID, branchID, tableID, openedBy uuid.UUID) (*TableCycleResult, error) {
	if err := s.gate.CheckOrderOpen(ctx, restaurantID); err != nil {
		return nil, err
	}
	return s.seatTableWithRetry(ctx, branchID, tableID, openedBy, enum.TableStatusReserved)
}

func (s *Session) seatTableWithRetry(ctx context.Context, branchID, tableID, openedBy uuid.UUID, requiredStatus string) (*TableCycleResult, error) {
	// Retry loop: concurrent transactions can draw the same order number.
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.seatTableTx(ctx, branchID, tableID, openedBy, requiredStatus)
		if err == nil {
			return result, nil
		}
		if database.IsUniqueViolation(err, orderNumberUniqueConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *Session) seatTableTx(ctx context.Context, branchID, tableID, openedBy uuid.UUID, requiredStatus string) (*TableCycleResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	table, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: tableID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("table")
		}
		return nil, lockErr(err, "table")
	}

	if table.Status != requiredStatus {
		return nil, apperr.Conflict("table %d is %s", table.Number, table.Status)
	}

	nextNum, err := store.GetNextOrderNumber(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID: table.RestaurantID,
		BranchID:     branchID,
		TableID:      pgtype.UUID{Bytes: table.ID, Valid: true},
		OrderNumber:  fmt.Sprintf("VTA-%03d", nextNum),
		ServiceType:  enum.ServiceTypeDineIn,
		CreatedBy:    openedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	table, err = store.UpdateTableSession(ctx, database.UpdateTableSessionParams{
		ID:               table.ID,
		Status:           enum.TableStatusOccupied,
		AccumulatedTotal: zeroNumeric(),
		CurrentOrderID:   pgtype.UUID{Bytes: order.ID, Valid: true},
		OpenedAt:         pgtype.Timestamptz{Time: time.Now(), Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("update table session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &TableCycleResult{Table: table, Order: order}, nil
}

// Reserve transitions a FREE table to RESERVED without creating an order.
// The same mutual-exclusion rule applies: a non-free table cannot be
// reserved again.
func (s *Session) Reserve(ctx context.Context, branchID, tableID uuid.UUID) (*database.DiningTable, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	table, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: tableID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("table")
		}
		return nil, lockErr(err, "table")
	}

	if table.Status != enum.TableStatusFree {
		return nil, apperr.Conflict("table %d is %s", table.Number, table.Status)
	}

	table, err = store.UpdateTableSession(ctx, database.UpdateTableSessionParams{
		ID:               table.ID,
		Status:           enum.TableStatusReserved,
		AccumulatedTotal: zeroNumeric(),
	})
	if err != nil {
		return nil, fmt.Errorf("update table session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &table, nil
}

// OpenOrder starts a takeaway/delivery tab with no table attached.
func (s *Session) OpenOrder(ctx context.Context, restaurantID, branchID, openedBy uuid.UUID, serviceType, note string) (*database.Order, error) {
	if serviceType == enum.ServiceTypeDineIn {
		return nil, apperr.Validation("dine-in orders are opened through a table")
	}
	if !enum.IsValidServiceType(serviceType) {
		return nil, apperr.Validation("invalid service_type %q", serviceType)
	}
	if err := s.gate.CheckOrderOpen(ctx, restaurantID); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		order, err := s.openOrderTx(ctx, restaurantID, branchID, openedBy, serviceType, note)
		if err == nil {
			return order, nil
		}
		if database.IsUniqueViolation(err, orderNumberUniqueConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *Session) openOrderTx(ctx context.Context, restaurantID, branchID, openedBy uuid.UUID, serviceType, note string) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	notes := pgtype.Text{}
	if note != "" {
		notes = pgtype.Text{String: note, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID: restaurantID,
		BranchID:     branchID,
		OrderNumber:  fmt.Sprintf("VTA-%03d", nextNum),
		ServiceType:  serviceType,
		Notes:        notes,
		CreatedBy:    openedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &order, nil
}

// RequestBill moves an order (and its table) to PENDING_PAYMENT. No
// structural change to the order besides status; the total stays as is.
func (s *Session) RequestBill(ctx context.Context, branchID, orderID uuid.UUID) (*TableCycleResult, error) {
	return s.moveBillStatus(ctx, branchID, orderID,
		[]string{enum.OrderStatusOpen, enum.OrderStatusInPreparation},
		enum.OrderStatusPendingPayment, enum.TableStatusPendingPayment)
}

// ReopenOrder reverses a bill request when payment is aborted and more items
// will be added.
func (s *Session) ReopenOrder(ctx context.Context, branchID, orderID uuid.UUID) (*TableCycleResult, error) {
	return s.moveBillStatus(ctx, branchID, orderID,
		[]string{enum.OrderStatusPendingPayment},
		enum.OrderStatusOpen, enum.TableStatusOccupied)
}

func (s *Session) moveBillStatus(ctx context.Context, branchID, orderID uuid.UUID, from []string, to, tableStatus string) (*TableCycleResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order")
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	var table database.DiningTable
	hasTable := order.TableID.Valid
	if hasTable {
		table, err = store.GetTableForUpdate(ctx, database.GetTableParams{
			ID:       uuid.UUID(order.TableID.Bytes),
			BranchID: branchID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.NotFound("table")
			}
			return nil, lockErr(err, "table")
		}
	}

	order, err = store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		return nil, lockErr(err, "order")
	}

	allowed := false
	for _, st := range from {
		if order.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperr.InvalidState("cannot transition order from %s to %s", order.Status, to)
	}

	order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         order.ID,
		Status:     to,
		PrevStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("order status changed, please retry")
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if hasTable {
		table, err = store.UpdateTableSession(ctx, database.UpdateTableSessionParams{
			ID:               table.ID,
			Status:           tableStatus,
			AccumulatedTotal: order.TotalAmount,
			CurrentOrderID:   table.CurrentOrderID,
			OpenedAt:         table.OpenedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("update table session: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &TableCycleResult{Table: table, Order: order}, nil
}

// GetSnapshot reads one table with its attached order and line items. Any
// detected invariant violation — a mirror total disagreeing with the
// recomputed order total, or an occupied table without an order reference —
// is repaired and persisted before the snapshot is returned, never
// propagated to the caller.
func (s *Session) GetSnapshot(ctx context.Context, branchID, tableID uuid.UUID) (*Snapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := store.SetLockTimeout(ctx, lockTimeoutMillis); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	table, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: tableID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("table")
		}
		return nil, lockErr(err, "table")
	}

	snap := &Snapshot{Table: table, Modifiers: map[uuid.UUID][]database.OrderItemModifier{}}

	if !table.CurrentOrderID.Valid {
		// Occupied with no order reference is the defect class the repair
		// path exists for: fall back to FREE with a zero mirror.
		if table.Status == enum.TableStatusOccupied || table.Status == enum.TableStatusPendingPayment {
			table, err = store.UpdateTableSession(ctx, database.UpdateTableSessionParams{
				ID:               table.ID,
				Status:           enum.TableStatusFree,
				AccumulatedTotal: zeroNumeric(),
			})
			if err != nil {
				return nil, fmt.Errorf("repair table session: %w", err)
			}
			snap.Table = table
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return snap, nil
	}

	orderID := uuid.UUID(table.CurrentOrderID.Bytes)
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order")
		}
		return nil, lockErr(err, "order")
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	activeItems, err := store.ListActiveOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	activeMods, err := store.ListActiveOrderItemModifiersByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list active modifiers: %w", err)
	}

	// Repair-on-read: the freshly recomputed total is authoritative over
	// both stored values.
	recomputed := RecomputeTotal(activeItems, activeMods)
	if !numericToDecimal(order.TotalAmount).Equal(recomputed) {
		order, err = store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
			ID:          order.ID,
			TotalAmount: decimalToNumeric(recomputed),
		})
		if err != nil {
			return nil, fmt.Errorf("repair order total: %w", err)
		}
	}
	if !numericToDecimal(table.AccumulatedTotal).Equal(recomputed) {
		table, err = store.UpdateTableTotal(ctx, database.UpdateTableTotalParams{
			ID:               table.ID,
			AccumulatedTotal: decimalToNumeric(recomputed),
		})
		if err != nil {
			return nil, fmt.Errorf("repair table total: %w", err)
		}
	}

	for _, it := range items {
		mods, err := store.ListOrderItemModifiersByOrderItem(ctx, it.ID)
		if err != nil {
			return nil, fmt.Errorf("list item modifiers: %w", err)
		}
		if len(mods) > 0 {
			snap.Modifiers[it.ID] = mods
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	snap.Table = table
	snap.Order = &order
	snap.Items = items
	return snap, nil
}
