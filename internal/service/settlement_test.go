package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
)

func newTestSettler(store *mockStore) (*Settler, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) SettlementStore { return store }
	return NewSettler(pool, newStore), tx
}

// settleStore returns a store with one dine-in order worth 15.00 on an
// occupied table.
func settleStore(branchID, tableID, orderID uuid.UUID, orderStatus string) *mockStore {
	store := tableStoreWithStatus(branchID, tableID, enum.TableStatusOccupied)
	store.getOrderFn = func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
		if arg.ID == orderID && arg.BranchID == branchID {
			return database.Order{
				ID:          orderID,
				BranchID:    branchID,
				TableID:     tableUUID(tableID),
				OrderNumber: "VTA-003",
				ServiceType: enum.ServiceTypeDineIn,
				Status:      orderStatus,
				TotalAmount: makeNumeric("15.00"),
			}, nil
		}
		return database.Order{}, pgx.ErrNoRows
	}
	store.listActiveOrderItemsFn = func(ctx context.Context, oid uuid.UUID) ([]database.OrderItem, error) {
		return []database.OrderItem{
			{ID: uuid.New(), OrderID: orderID, Quantity: 2, UnitPrice: makeNumeric("7.50"), Active: true},
		}, nil
	}
	return store
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestSettle_CashWithChange(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusPendingPayment)
	var freed *database.UpdateTableSessionParams
	store.updateTableSessionFn = func(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error) {
		freed = &arg
		return database.DiningTable{ID: arg.ID, Status: arg.Status, AccumulatedTotal: arg.AccumulatedTotal}, nil
	}

	settler, tx := newTestSettler(store)
	result, err := settler.Settle(context.Background(), SettleParams{
		OrderID:        orderID,
		BranchID:       branchID,
		PaymentMethod:  enum.PaymentMethodCash,
		AmountReceived: mustDecimal(t, "20.00"),
		ProcessedBy:    uuid.New(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !numericEquals(result.Settlement.Amount, "15.00") {
		t.Errorf("expected charged amount 15.00, got %v", result.Settlement.Amount)
	}
	if !numericEquals(result.Settlement.AmountReceived, "20.00") {
		t.Errorf("expected received 20.00, got %v", result.Settlement.AmountReceived)
	}
	if !numericEquals(result.Settlement.ChangeAmount, "5.00") {
		t.Errorf("expected change 5.00, got %v", result.Settlement.ChangeAmount)
	}
	if result.Order.Status != enum.OrderStatusClosed {
		t.Errorf("expected CLOSED, got %s", result.Order.Status)
	}
	if result.Table == nil {
		t.Fatal("expected released table for dine-in")
	}
	if freed == nil {
		t.Fatal("expected the table row to be rewritten")
	}
	if freed.Status != enum.TableStatusFree {
		t.Errorf("table should be returned to FREE, got %s", freed.Status)
	}
	if freed.CurrentOrderID.Valid {
		t.Error("freed table must not reference an order")
	}
	if tx.commits != 1 {
		t.Errorf("expected 1 commit, got %d", tx.commits)
	}
}

func TestSettle_CashUnderpayRejected(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusPendingPayment)
	settler, tx := newTestSettler(store)

	_, err := settler.Settle(context.Background(), SettleParams{
		OrderID:        orderID,
		BranchID:       branchID,
		PaymentMethod:  enum.PaymentMethodCash,
		AmountReceived: mustDecimal(t, "10.00"),
		ProcessedBy:    uuid.New(),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got: %v", err)
	}
	if tx.commits != 0 {
		t.Errorf("underpay must not commit, got %d commits", tx.commits)
	}
}

func TestSettle_CardCapturesExactTotal(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusPendingPayment)
	settler, _ := newTestSettler(store)

	// Whatever the terminal sends for received, non-cash captures the total.
	result, err := settler.Settle(context.Background(), SettleParams{
		OrderID:       orderID,
		BranchID:      branchID,
		PaymentMethod: enum.PaymentMethodCard,
		ProcessedBy:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(result.Settlement.AmountReceived, "15.00") {
		t.Errorf("expected received 15.00, got %v", result.Settlement.AmountReceived)
	}
	if !numericEquals(result.Settlement.ChangeAmount, "0.00") {
		t.Errorf("expected zero change, got %v", result.Settlement.ChangeAmount)
	}
}

func TestSettle_RecomputesTotalFromLines(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	// The stored total is stale; the rows say 7.50.
	store := settleStore(branchID, tableID, orderID, enum.OrderStatusOpen)
	store.listActiveOrderItemsFn = func(ctx context.Context, oid uuid.UUID) ([]database.OrderItem, error) {
		return []database.OrderItem{
			{ID: uuid.New(), OrderID: orderID, Quantity: 1, UnitPrice: makeNumeric("7.50"), Active: true},
		}, nil
	}

	settler, _ := newTestSettler(store)
	result, err := settler.Settle(context.Background(), SettleParams{
		OrderID:       orderID,
		BranchID:      branchID,
		PaymentMethod: enum.PaymentMethodQR,
		ProcessedBy:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(result.Settlement.Amount, "7.50") {
		t.Errorf("expected recomputed amount 7.50, got %v", result.Settlement.Amount)
	}
}

func TestSettle_InvalidPaymentMethod(t *testing.T) {
	settler, _ := newTestSettler(&mockStore{})

	_, err := settler.Settle(context.Background(), SettleParams{
		OrderID:       uuid.New(),
		BranchID:      uuid.New(),
		PaymentMethod: "BARTER",
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got: %v", err)
	}
}

func TestSettle_TerminalOrderRejected(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusClosed)
	settler, _ := newTestSettler(store)

	_, err := settler.Settle(context.Background(), SettleParams{
		OrderID:       orderID,
		BranchID:      branchID,
		PaymentMethod: enum.PaymentMethodCard,
	})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got: %v", err)
	}
}

func TestSettle_UnknownOrder(t *testing.T) {
	settler, _ := newTestSettler(&mockStore{})

	_, err := settler.Settle(context.Background(), SettleParams{
		OrderID:       uuid.New(),
		BranchID:      uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestCancel_FreesTable(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusOpen)
	var freed *database.UpdateTableSessionParams
	store.updateTableSessionFn = func(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error) {
		freed = &arg
		return database.DiningTable{ID: arg.ID, Status: arg.Status}, nil
	}

	settler, _ := newTestSettler(store)
	result, err := settler.Cancel(context.Background(), CancelParams{
		OrderID:  orderID,
		BranchID: branchID,
		Reason:   "guest left",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", result.Order.Status)
	}
	if result.Order.CancelReason.String != "guest left" {
		t.Errorf("expected reason to persist, got %q", result.Order.CancelReason.String)
	}
	if freed == nil || freed.Status != enum.TableStatusFree {
		t.Error("table should be returned to FREE")
	}
}

func TestCancel_PendingPaymentNeedsOverride(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusPendingPayment)
	settler, _ := newTestSettler(store)

	_, err := settler.Cancel(context.Background(), CancelParams{
		OrderID:  orderID,
		BranchID: branchID,
		Reason:   "kitchen out of stock",
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict without override, got: %v", err)
	}

	result, err := settler.Cancel(context.Background(), CancelParams{
		OrderID:  orderID,
		BranchID: branchID,
		Reason:   "kitchen out of stock",
		Override: true,
	})
	if err != nil {
		t.Fatalf("unexpected error with override: %v", err)
	}
	if result.Order.Status != enum.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", result.Order.Status)
	}
}

func TestCancel_TerminalOrderRejected(t *testing.T) {
	branchID := uuid.New()
	tableID := uuid.New()
	orderID := uuid.New()

	store := settleStore(branchID, tableID, orderID, enum.OrderStatusCancelled)
	settler, _ := newTestSettler(store)

	_, err := settler.Cancel(context.Background(), CancelParams{
		OrderID:  orderID,
		BranchID: branchID,
	})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got: %v", err)
	}
}
