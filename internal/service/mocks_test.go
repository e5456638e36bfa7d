package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/database"
)

// mockTx implements pgx.Tx with only the methods the services touch.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	commits     int
	rollbacks   int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.commits++
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error {
	m.rollbacks++
	return m.rollbackErr
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockGate implements QuotaGate; nil fns allow everything.
type mockGate struct {
	checkOrderOpenFn      func(ctx context.Context, restaurantID uuid.UUID) error
	checkTableProvisionFn func(ctx context.Context, restaurantID uuid.UUID) error
}

func (m *mockGate) CheckOrderOpen(ctx context.Context, restaurantID uuid.UUID) error {
	if m.checkOrderOpenFn != nil {
		return m.checkOrderOpenFn(ctx, restaurantID)
	}
	return nil
}

func (m *mockGate) CheckTableProvision(ctx context.Context, restaurantID uuid.UUID) error {
	if m.checkTableProvisionFn != nil {
		return m.checkTableProvisionFn(ctx, restaurantID)
	}
	return nil
}

// mockStore implements the union of SessionStore, LedgerStore and
// SettlementStore with configurable behavior. Unset row functions return
// pgx.ErrNoRows; unset list functions return empty.
type mockStore struct {
	setLockTimeoutFn func(ctx context.Context, millis int) error

	getTableFn           func(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	getTableForUpdateFn  func(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	updateTableSessionFn func(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error)
	updateTableTotalFn   func(ctx context.Context, arg database.UpdateTableTotalParams) (database.DiningTable, error)

	getNextOrderNumberFn    func(ctx context.Context, branchID uuid.UUID) (int32, error)
	createOrderFn           func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	getOrderFn              func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	getOrderForUpdateFn     func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	getActiveOrderByTableFn func(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	updateOrderStatusFn     func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	updateOrderTotalFn      func(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)

	getProductForOrderFn      func(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	listModifiersForProductFn func(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error)

	createOrderItemFn         func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	createOrderItemModifierFn func(ctx context.Context, arg database.CreateOrderItemModifierParams) (database.OrderItemModifier, error)
	getOrderItemFn            func(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error)
	voidOrderItemFn           func(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error)

	listActiveOrderItemsFn                func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listActiveOrderItemModifiersByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error)
	listOrderItemsByOrderFn               func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listOrderItemModifiersByOrderItemFn   func(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemModifier, error)

	createSettlementFn func(ctx context.Context, arg database.CreateSettlementParams) (database.Settlement, error)
	closeOrderFn       func(ctx context.Context, id uuid.UUID) (database.Order, error)
	cancelOrderFn      func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
}

func (m *mockStore) SetLockTimeout(ctx context.Context, millis int) error {
	if m.setLockTimeoutFn != nil {
		return m.setLockTimeoutFn(ctx, millis)
	}
	return nil
}

func (m *mockStore) GetTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error) {
	if m.getTableFn != nil {
		return m.getTableFn(ctx, arg)
	}
	return database.DiningTable{}, pgx.ErrNoRows
}

func (m *mockStore) GetTableForUpdate(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error) {
	if m.getTableForUpdateFn != nil {
		return m.getTableForUpdateFn(ctx, arg)
	}
	return database.DiningTable{}, pgx.ErrNoRows
}

func (m *mockStore) UpdateTableSession(ctx context.Context, arg database.UpdateTableSessionParams) (database.DiningTable, error) {
	if m.updateTableSessionFn != nil {
		return m.updateTableSessionFn(ctx, arg)
	}
	return database.DiningTable{
		ID:               arg.ID,
		Status:           arg.Status,
		AccumulatedTotal: arg.AccumulatedTotal,
		CurrentOrderID:   arg.CurrentOrderID,
		OpenedAt:         arg.OpenedAt,
	}, nil
}

func (m *mockStore) UpdateTableTotal(ctx context.Context, arg database.UpdateTableTotalParams) (database.DiningTable, error) {
	if m.updateTableTotalFn != nil {
		return m.updateTableTotalFn(ctx, arg)
	}
	return database.DiningTable{ID: arg.ID, AccumulatedTotal: arg.AccumulatedTotal}, nil
}

func (m *mockStore) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	if m.getNextOrderNumberFn != nil {
		return m.getNextOrderNumberFn(ctx, branchID)
	}
	return 1, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, arg)
	}
	return database.Order{
		ID:           uuid.New(),
		RestaurantID: arg.RestaurantID,
		BranchID:     arg.BranchID,
		TableID:      arg.TableID,
		OrderNumber:  arg.OrderNumber,
		ServiceType:  arg.ServiceType,
		Status:       "OPEN",
		Notes:        arg.Notes,
		TotalAmount:  makeNumeric("0.00"),
		CreatedBy:    arg.CreatedBy,
	}, nil
}

func (m *mockStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockStore) GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderForUpdateFn != nil {
		return m.getOrderForUpdateFn(ctx, arg)
	}
	// Default to the unlocked read so tests only configure one of them.
	return m.GetOrder(ctx, arg)
}

func (m *mockStore) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	if m.getActiveOrderByTableFn != nil {
		return m.getActiveOrderByTableFn(ctx, tableID)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	return database.Order{ID: arg.ID, Status: arg.Status, TotalAmount: makeNumeric("0.00")}, nil
}

func (m *mockStore) UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error) {
	if m.updateOrderTotalFn != nil {
		return m.updateOrderTotalFn(ctx, arg)
	}
	return database.Order{ID: arg.ID, TotalAmount: arg.TotalAmount}, nil
}

func (m *mockStore) GetProductForOrder(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
	if m.getProductForOrderFn != nil {
		return m.getProductForOrderFn(ctx, arg)
	}
	return database.Product{}, pgx.ErrNoRows
}

func (m *mockStore) ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error) {
	if m.listModifiersForProductFn != nil {
		return m.listModifiersForProductFn(ctx, productID)
	}
	return nil, nil
}

func (m *mockStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	if m.createOrderItemFn != nil {
		return m.createOrderItemFn(ctx, arg)
	}
	return database.OrderItem{
		ID:          uuid.New(),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		ProductName: arg.ProductName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		Subtotal:    arg.Subtotal,
		Notes:       arg.Notes,
		Active:      true,
	}, nil
}

func (m *mockStore) CreateOrderItemModifier(ctx context.Context, arg database.CreateOrderItemModifierParams) (database.OrderItemModifier, error) {
	if m.createOrderItemModifierFn != nil {
		return m.createOrderItemModifierFn(ctx, arg)
	}
	return database.OrderItemModifier{
		ID:           uuid.New(),
		OrderItemID:  arg.OrderItemID,
		ModifierID:   arg.ModifierID,
		ModifierName: arg.ModifierName,
		Quantity:     arg.Quantity,
		UnitPrice:    arg.UnitPrice,
	}, nil
}

func (m *mockStore) GetOrderItem(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error) {
	if m.getOrderItemFn != nil {
		return m.getOrderItemFn(ctx, arg)
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (m *mockStore) VoidOrderItem(ctx context.Context, arg database.OrderItemRefParams) (database.OrderItem, error) {
	if m.voidOrderItemFn != nil {
		return m.voidOrderItemFn(ctx, arg)
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (m *mockStore) ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listActiveOrderItemsFn != nil {
		return m.listActiveOrderItemsFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) ListActiveOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error) {
	if m.listActiveOrderItemModifiersByOrderFn != nil {
		return m.listActiveOrderItemModifiersByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) ListOrderItemModifiersByOrderItem(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemModifier, error) {
	if m.listOrderItemModifiersByOrderItemFn != nil {
		return m.listOrderItemModifiersByOrderItemFn(ctx, orderItemID)
	}
	return nil, nil
}

func (m *mockStore) CreateSettlement(ctx context.Context, arg database.CreateSettlementParams) (database.Settlement, error) {
	if m.createSettlementFn != nil {
		return m.createSettlementFn(ctx, arg)
	}
	return database.Settlement{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		PaymentMethod:  arg.PaymentMethod,
		Amount:         arg.Amount,
		AmountReceived: arg.AmountReceived,
		ChangeAmount:   arg.ChangeAmount,
		ProcessedBy:    arg.ProcessedBy,
	}, nil
}

func (m *mockStore) CloseOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.closeOrderFn != nil {
		return m.closeOrderFn(ctx, id)
	}
	return database.Order{ID: id, Status: "CLOSED"}, nil
}

func (m *mockStore) CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
	if m.cancelOrderFn != nil {
		return m.cancelOrderFn(ctx, arg)
	}
	return database.Order{ID: arg.ID, Status: "CANCELLED", CancelReason: arg.CancelReason}, nil
}

// --- Shared helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	exp, _ := decimal.NewFromString(expected)
	return numericToDecimal(n).Equal(exp)
}

func tableUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
