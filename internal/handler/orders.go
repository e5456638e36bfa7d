package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/cache"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/notify"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
)

// LedgerServicer defines the ledger methods order handlers drive.
// Satisfied by *service.Ledger.
type LedgerServicer interface {
	AddLineItem(ctx context.Context, req service.AddLineItemRequest) (*service.LineItemResult, error)
	VoidLineItem(ctx context.Context, branchID, orderID, itemID uuid.UUID) (*service.VoidResult, error)
	UpdateStatus(ctx context.Context, branchID, orderID uuid.UUID, next string) (*database.Order, error)
}

// OrderSessionServicer defines the session methods order handlers drive.
// Satisfied by *service.Session.
type OrderSessionServicer interface {
	OpenOrder(ctx context.Context, restaurantID, branchID, openedBy uuid.UUID, serviceType, note string) (*database.Order, error)
	RequestBill(ctx context.Context, branchID, orderID uuid.UUID) (*service.TableCycleResult, error)
	ReopenOrder(ctx context.Context, branchID, orderID uuid.UUID) (*service.TableCycleResult, error)
}

// SettlerServicer defines the lifecycle-closing methods.
// Satisfied by *service.Settler.
type SettlerServicer interface {
	Settle(ctx context.Context, p service.SettleParams) (*service.SettleResult, error)
	Cancel(ctx context.Context, p service.CancelParams) (*service.CancelResult, error)
}

// OrderStore defines the database reads order handlers need.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListActiveOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemModifiersByOrderItem(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemModifier, error)
	ListSettlementsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Settlement, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	ledger  LedgerServicer
	session OrderSessionServicer
	settler SettlerServicer
	store   OrderStore
	events  *notify.Events
	floor   *cache.Floor
}

func NewOrderHandler(ledger LedgerServicer, session OrderSessionServicer, settler SettlerServicer, store OrderStore, events *notify.Events, floor *cache.Floor) *OrderHandler {
	return &OrderHandler{ledger: ledger, session: session, settler: settler, store: store, events: events, floor: floor}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /branches/{bid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/items", h.AddItem)
	r.Delete("/{id}/items/{itemID}", h.VoidItem)
	r.Post("/{id}/bill", h.RequestBill)
	r.Post("/{id}/reopen", h.Reopen)
	r.Post("/{id}/settle", h.Settle)
	r.Post("/{id}/cancel", h.Cancel)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type openOrderRequest struct {
	ServiceType string `json:"service_type"`
	Notes       string `json:"notes"`
}

type addItemRequest struct {
	ProductID string                   `json:"product_id"`
	Quantity  int32                    `json:"quantity"`
	Notes     string                   `json:"notes"`
	Modifiers []addItemModifierRequest `json:"modifiers"`
}

type addItemModifierRequest struct {
	ModifierID string `json:"modifier_id"`
	Quantity   int32  `json:"quantity"`
}

type settleRequest struct {
	PaymentMethod  string `json:"payment_method"`
	AmountReceived string `json:"amount_received"`
}

type cancelRequest struct {
	Reason   string `json:"reason"`
	Override bool   `json:"override"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID           uuid.UUID            `json:"id"`
	BranchID     uuid.UUID            `json:"branch_id"`
	TableID      *uuid.UUID           `json:"table_id"`
	OrderNumber  string               `json:"order_number"`
	ServiceType  string               `json:"service_type"`
	Status       string               `json:"status"`
	Notes        *string              `json:"notes"`
	TotalAmount  string               `json:"total_amount"`
	OpenedAt     time.Time            `json:"opened_at"`
	ClosedAt     *time.Time           `json:"closed_at"`
	CancelReason *string              `json:"cancel_reason"`
	CreatedBy    uuid.UUID            `json:"created_by"`
	Items        []orderItemResponse  `json:"items,omitempty"`
	Settlements  []settlementResponse `json:"settlements,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID                   `json:"id"`
	ProductID   uuid.UUID                   `json:"product_id"`
	ProductName string                      `json:"product_name"`
	Quantity    int32                       `json:"quantity"`
	UnitPrice   string                      `json:"unit_price"`
	Subtotal    string                      `json:"subtotal"`
	Notes       *string                     `json:"notes"`
	Active      bool                        `json:"active"`
	VoidedAt    *time.Time                  `json:"voided_at"`
	Modifiers   []orderItemModifierResponse `json:"modifiers"`
}

type orderItemModifierResponse struct {
	ID           uuid.UUID `json:"id"`
	ModifierID   uuid.UUID `json:"modifier_id"`
	ModifierName string    `json:"modifier_name"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    string    `json:"unit_price"`
}

type settlementResponse struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	PaymentMethod  string    `json:"payment_method"`
	Amount         string    `json:"amount"`
	AmountReceived string    `json:"amount_received"`
	ChangeAmount   string    `json:"change_amount"`
	ProcessedBy    uuid.UUID `json:"processed_by"`
	ProcessedAt    time.Time `json:"processed_at"`
}

type settleResponse struct {
	Order      orderResponse      `json:"order"`
	Settlement settlementResponse `json:"settlement"`
	Table      *tableResponse     `json:"table,omitempty"`
}

type cancelResponse struct {
	Order orderResponse  `json:"order"`
	Table *tableResponse `json:"table,omitempty"`
}

// --- Handlers ---

// Open handles POST /branches/{bid}/orders: a takeaway or delivery tab with
// no table attached. Dine-in orders are opened through the table endpoints.
func (h *OrderHandler) Open(w http.ResponseWriter, r *http.Request) {
	branchID, claims, ok := branchRequest(w, r)
	if !ok {
		return
	}

	var req openOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.session.OpenOrder(r.Context(), claims.RestaurantID, branchID, claims.UserID, req.ServiceType, req.Notes)
	if err != nil {
		writeError(w, "open order", err)
		return
	}

	h.events.Broadcast(branchID, ws.EventOrderChanged, dbOrderToResponse(*order))
	writeJSON(w, http.StatusCreated, dbOrderToResponse(*order))
}

// List handles GET /branches/{bid}/orders?status=OPEN&limit=50&offset=0.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}

	status := pgtype.Text{}
	if s := r.URL.Query().Get("status"); s != "" {
		status = pgtype.Text{String: s, Valid: true}
	}

	limit := int32(50)
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = int32(n)
		}
	}
	offset := int32(0)
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = int32(n)
		}
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		BranchID: branchID,
		Status:   status,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /branches/{bid}/orders/{id}: the full ledger view with
// line items (voided ones included) and settlements.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeError(w, "get order", err)
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		writeError(w, "list order items", err)
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		mods, err := h.store.ListOrderItemModifiersByOrderItem(r.Context(), it.ID)
		if err != nil {
			writeError(w, "list item modifiers", err)
			return
		}
		resp.Items[i] = dbOrderItemToResponse(it, mods)
	}

	settlements, err := h.store.ListSettlementsByOrder(r.Context(), order.ID)
	if err != nil {
		writeError(w, "list settlements", err)
		return
	}
	resp.Settlements = make([]settlementResponse, len(settlements))
	for i, s := range settlements {
		resp.Settlements[i] = dbSettlementToResponse(s)
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddItem handles POST /branches/{bid}/orders/{id}/items.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}
	claims, ok2 := requestClaims(w, r)
	if !ok2 {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}

	modifiers := make([]service.RequestedModifier, 0, len(req.Modifiers))
	for i, m := range req.Modifiers {
		modID, err := uuid.Parse(m.ModifierID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid modifier_id at index " + strconv.Itoa(i)})
			return
		}
		modifiers = append(modifiers, service.RequestedModifier{ModifierID: modID, Quantity: m.Quantity})
	}

	result, err := h.ledger.AddLineItem(r.Context(), service.AddLineItemRequest{
		RestaurantID: claims.RestaurantID,
		BranchID:     branchID,
		OrderID:      orderID,
		ProductID:    productID,
		Quantity:     req.Quantity,
		Note:         req.Notes,
		Modifiers:    modifiers,
	})
	if err != nil {
		writeError(w, "add line item", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	orderResp := dbOrderToResponse(result.Order)
	h.events.Broadcast(branchID, ws.EventOrderItemAdded, orderResp)
	if result.Table != nil {
		h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(*result.Table))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order": orderResp,
		"item":  dbOrderItemToResponse(result.Item, result.Modifiers),
	})
}

// VoidItem handles DELETE /branches/{bid}/orders/{id}/items/{itemID}.
// The line stays on the ledger flagged inactive; the totals drop.
func (h *OrderHandler) VoidItem(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	result, err := h.ledger.VoidLineItem(r.Context(), branchID, orderID, itemID)
	if err != nil {
		writeError(w, "void line item", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	orderResp := dbOrderToResponse(result.Order)
	h.events.Broadcast(branchID, ws.EventOrderItemVoided, orderResp)
	if result.Table != nil {
		h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(*result.Table))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order": orderResp,
		"item":  dbOrderItemToResponse(result.Item, nil),
	})
}

// RequestBill handles POST /branches/{bid}/orders/{id}/bill.
func (h *OrderHandler) RequestBill(w http.ResponseWriter, r *http.Request) {
	h.billMove(w, r, "request bill", h.session.RequestBill)
}

// Reopen handles POST /branches/{bid}/orders/{id}/reopen: payment was
// aborted, the table goes on ordering.
func (h *OrderHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.billMove(w, r, "reopen order", h.session.ReopenOrder)
}

func (h *OrderHandler) billMove(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, branchID, orderID uuid.UUID) (*service.TableCycleResult, error)) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}

	result, err := fn(r.Context(), branchID, orderID)
	if err != nil {
		writeError(w, op, err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	orderResp := dbOrderToResponse(result.Order)
	h.events.Broadcast(branchID, ws.EventOrderChanged, orderResp)
	if result.Order.TableID.Valid {
		h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(result.Table))
	}

	writeJSON(w, http.StatusOK, orderResp)
}

// Settle handles POST /branches/{bid}/orders/{id}/settle: records payment,
// closes the order, frees the table, then notifies the reconciliation and
// inventory consumers.
func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}
	claims, ok2 := requestClaims(w, r)
	if !ok2 {
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	received := decimal.Zero
	if req.AmountReceived != "" {
		var err error
		received, err = decimal.NewFromString(req.AmountReceived)
		if err != nil || received.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_received"})
			return
		}
	}

	result, err := h.settler.Settle(r.Context(), service.SettleParams{
		OrderID:        orderID,
		BranchID:       branchID,
		PaymentMethod:  req.PaymentMethod,
		AmountReceived: received,
		ProcessedBy:    claims.UserID,
	})
	if err != nil {
		writeError(w, "settle order", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	h.publishSettled(r.Context(), branchID, result)

	resp := settleResponse{
		Order:      dbOrderToResponse(result.Order),
		Settlement: dbSettlementToResponse(result.Settlement),
	}
	if result.Table != nil {
		t := dbTableToResponse(*result.Table)
		resp.Table = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// publishSettled fans the committed settlement out: push to the branch
// terminals, then the reconciliation and inventory queues. All of it is
// best-effort after the commit.
func (h *OrderHandler) publishSettled(ctx context.Context, branchID uuid.UUID, result *service.SettleResult) {
	h.events.Broadcast(branchID, ws.EventOrderSettled, dbOrderToResponse(result.Order))
	if result.Table != nil {
		h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(*result.Table))
	}

	s := result.Settlement
	_ = h.events.Publish(ctx, notify.QueueSettlementRecorded, notify.SettlementMessage{
		SettlementID:   s.ID,
		OrderID:        s.OrderID,
		OrderNumber:    result.Order.OrderNumber,
		BranchID:       branchID,
		PaymentMethod:  s.PaymentMethod,
		Amount:         numericToString(s.Amount),
		AmountReceived: numericToString(s.AmountReceived),
		ChangeAmount:   numericToString(s.ChangeAmount),
		ProcessedBy:    s.ProcessedBy,
		ProcessedAt:    s.ProcessedAt,
	})

	items, err := h.store.ListActiveOrderItems(ctx, result.Order.ID)
	if err != nil {
		return
	}
	lines := make([]notify.InventoryLine, len(items))
	for i, it := range items {
		lines[i] = notify.InventoryLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	_ = h.events.Publish(ctx, notify.QueueInventoryDeduct, notify.InventoryMessage{
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.OrderNumber,
		BranchID:    branchID,
		Lines:       lines,
		SettledAt:   s.ProcessedAt,
	})
}

// Cancel handles POST /branches/{bid}/orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.settler.Cancel(r.Context(), service.CancelParams{
		OrderID:  orderID,
		BranchID: branchID,
		Reason:   req.Reason,
		Override: req.Override,
	})
	if err != nil {
		writeError(w, "cancel order", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	orderResp := dbOrderToResponse(result.Order)
	h.events.Broadcast(branchID, ws.EventOrderCancelled, orderResp)
	if result.Table != nil {
		h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(*result.Table))
	}
	_ = h.events.Publish(r.Context(), notify.QueueOrderCancelled, orderResp)

	resp := cancelResponse{Order: orderResp}
	if result.Table != nil {
		t := dbTableToResponse(*result.Table)
		resp.Table = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /branches/{bid}/orders/{id}/status: the kitchen
// display flips orders between OPEN and IN_PREPARATION. Bill, settle, and
// cancel have their own endpoints.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	branchID, orderID, ok := orderRequest(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status != enum.OrderStatusOpen && req.Status != enum.OrderStatusInPreparation {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	order, err := h.ledger.UpdateStatus(r.Context(), branchID, orderID, req.Status)
	if err != nil {
		writeError(w, "update order status", err)
		return
	}

	resp := dbOrderToResponse(*order)
	h.events.Broadcast(branchID, ws.EventOrderChanged, resp)
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// orderRequest parses {bid} and {id}; on failure the error has been written.
func orderRequest(w http.ResponseWriter, r *http.Request) (branchID, orderID uuid.UUID, ok bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return branchID, orderID, true
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		BranchID:    o.BranchID,
		OrderNumber: o.OrderNumber,
		ServiceType: o.ServiceType,
		Status:      o.Status,
		TotalAmount: numericToString(o.TotalAmount),
		OpenedAt:    o.OpenedAt,
		CreatedBy:   o.CreatedBy,
	}
	if o.TableID.Valid {
		id := uuid.UUID(o.TableID.Bytes)
		resp.TableID = &id
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.ClosedAt.Valid {
		resp.ClosedAt = &o.ClosedAt.Time
	}
	if o.CancelReason.Valid {
		resp.CancelReason = &o.CancelReason.String
	}
	return resp
}

func dbOrderItemToResponse(item database.OrderItem, mods []database.OrderItemModifier) orderItemResponse {
	resp := orderItemResponse{
		ID:          item.ID,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		UnitPrice:   numericToString(item.UnitPrice),
		Subtotal:    numericToString(item.Subtotal),
		Active:      item.Active,
	}
	if item.Notes.Valid {
		resp.Notes = &item.Notes.String
	}
	if item.VoidedAt.Valid {
		resp.VoidedAt = &item.VoidedAt.Time
	}
	resp.Modifiers = make([]orderItemModifierResponse, len(mods))
	for i, m := range mods {
		resp.Modifiers[i] = orderItemModifierResponse{
			ID:           m.ID,
			ModifierID:   m.ModifierID,
			ModifierName: m.ModifierName,
			Quantity:     m.Quantity,
			UnitPrice:    numericToString(m.UnitPrice),
		}
	}
	return resp
}

func dbSettlementToResponse(s database.Settlement) settlementResponse {
	return settlementResponse{
		ID:             s.ID,
		OrderID:        s.OrderID,
		PaymentMethod:  s.PaymentMethod,
		Amount:         numericToString(s.Amount),
		AmountReceived: numericToString(s.AmountReceived),
		ChangeAmount:   numericToString(s.ChangeAmount),
		ProcessedBy:    s.ProcessedBy,
		ProcessedAt:    s.ProcessedAt,
	}
}
