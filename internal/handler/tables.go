package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/cache"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/notify"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
)

// TableStore defines the database methods needed by table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.DiningTable, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	ListTables(ctx context.Context, branchID uuid.UUID) ([]database.DiningTable, error)
	DeactivateTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
}

// SessionServicer defines the session state-machine methods table handlers
// drive. Satisfied by *service.Session.
type SessionServicer interface {
	OpenTable(ctx context.Context, restaurantID, branchID, tableID, openedBy uuid.UUID) (*service.TableCycleResult, error)
	Reserve(ctx context.Context, branchID, tableID uuid.UUID) (*database.DiningTable, error)
	SeatReservation(ctx context.Context, restaurantID, branchID, tableID, openedBy uuid.UUID) (*service.TableCycleResult, error)
	GetSnapshot(ctx context.Context, branchID, tableID uuid.UUID) (*service.Snapshot, error)
}

// TableQuota is the plan check for provisioning new tables.
type TableQuota interface {
	CheckTableProvision(ctx context.Context, restaurantID uuid.UUID) error
}

// TableHandler handles table endpoints.
type TableHandler struct {
	store   TableStore
	session SessionServicer
	quota   TableQuota
	events  *notify.Events
	floor   *cache.Floor
}

func NewTableHandler(store TableStore, session SessionServicer, quota TableQuota, events *notify.Events, floor *cache.Floor) *TableHandler {
	return &TableHandler{store: store, session: session, quota: quota, events: events, floor: floor}
}

// RegisterRoutes registers the floor endpoints every role uses.
// Expected to be mounted at /branches/{bid}/tables
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Snapshot)
	r.Post("/{id}/open", h.Open)
	r.Post("/{id}/reserve", h.Reserve)
	r.Post("/{id}/seat", h.Seat)
}

// RegisterAdminRoutes registers table provisioning; the router gates these
// behind the manager roles.
func (h *TableHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Deactivate)
}

// --- Request / Response types ---

type createTableRequest struct {
	Number   int32 `json:"number"`
	Capacity int32 `json:"capacity"`
}

type tableResponse struct {
	ID               uuid.UUID  `json:"id"`
	BranchID         uuid.UUID  `json:"branch_id"`
	Number           int32      `json:"number"`
	Capacity         int32      `json:"capacity"`
	Status           string     `json:"status"`
	AccumulatedTotal string     `json:"accumulated_total"`
	CurrentOrderID   *uuid.UUID `json:"current_order_id"`
	OpenedAt         *time.Time `json:"opened_at"`
}

type tableCycleResponse struct {
	Table tableResponse `json:"table"`
	Order orderResponse `json:"order"`
}

type snapshotResponse struct {
	Table tableResponse  `json:"table"`
	Order *orderResponse `json:"order,omitempty"`
}

// --- Handlers ---

// Create handles POST /branches/{bid}/tables. Provisioning is gated by the
// tenant's plan.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, claims, ok := branchRequest(w, r)
	if !ok {
		return
	}

	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Number <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "number must be positive"})
		return
	}
	if req.Capacity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "capacity must be positive"})
		return
	}

	if err := h.quota.CheckTableProvision(r.Context(), claims.RestaurantID); err != nil {
		writeError(w, "check table quota", err)
		return
	}

	table, err := h.store.CreateTable(r.Context(), database.CreateTableParams{
		RestaurantID: claims.RestaurantID,
		BranchID:     branchID,
		Number:       req.Number,
		Capacity:     req.Capacity,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "dining_tables_branch_id_number_key") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table number already exists in branch"})
			return
		}
		writeError(w, "create table", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	writeJSON(w, http.StatusCreated, dbTableToResponse(table))
}

// List handles GET /branches/{bid}/tables: the floor view. Served from the
// Redis cache when warm.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}

	if body, hit := h.floor.Get(r.Context(), branchID); hit {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
		return
	}

	tables, err := h.store.ListTables(r.Context(), branchID)
	if err != nil {
		writeError(w, "list tables", err)
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = dbTableToResponse(t)
	}

	if body, err := json.Marshal(resp); err == nil {
		h.floor.Set(r.Context(), branchID, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Snapshot handles GET /branches/{bid}/tables/{id}: one table with its
// attached order and line items.
func (h *TableHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	snap, err := h.session.GetSnapshot(r.Context(), branchID, tableID)
	if err != nil {
		writeError(w, "get table snapshot", err)
		return
	}

	resp := snapshotResponse{Table: dbTableToResponse(snap.Table)}
	if snap.Order != nil {
		or := dbOrderToResponse(*snap.Order)
		or.Items = make([]orderItemResponse, len(snap.Items))
		for i, it := range snap.Items {
			or.Items[i] = dbOrderItemToResponse(it, snap.Modifiers[it.ID])
		}
		resp.Order = &or
	}
	writeJSON(w, http.StatusOK, resp)
}

// Deactivate handles DELETE /branches/{bid}/tables/{id}. Soft delete, and
// only for a FREE table: an occupied one must be settled or cancelled first.
func (h *TableHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	table, err := h.store.DeactivateTable(r.Context(), database.GetTableParams{ID: tableID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the table does not exist or it is not FREE.
			if _, getErr := h.store.GetTable(r.Context(), database.GetTableParams{ID: tableID, BranchID: branchID}); getErr == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "table is in use"})
				return
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		writeError(w, "deactivate table", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

// Open handles POST /branches/{bid}/tables/{id}/open: FREE -> OCCUPIED with
// a fresh order.
func (h *TableHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.cycle(w, r, "open table", h.session.OpenTable)
}

// Seat handles POST /branches/{bid}/tables/{id}/seat: RESERVED -> OCCUPIED.
func (h *TableHandler) Seat(w http.ResponseWriter, r *http.Request) {
	h.cycle(w, r, "seat reservation", h.session.SeatReservation)
}

func (h *TableHandler) cycle(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, restaurantID, branchID, tableID, openedBy uuid.UUID) (*service.TableCycleResult, error)) {
	branchID, claims, ok := branchRequest(w, r)
	if !ok {
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	result, err := fn(r.Context(), claims.RestaurantID, branchID, tableID, claims.UserID)
	if err != nil {
		writeError(w, op, err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(result.Table))
	writeJSON(w, http.StatusCreated, tableCycleResponse{
		Table: dbTableToResponse(result.Table),
		Order: dbOrderToResponse(result.Order),
	})
}

// Reserve handles POST /branches/{bid}/tables/{id}/reserve.
func (h *TableHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	table, err := h.session.Reserve(r.Context(), branchID, tableID)
	if err != nil {
		writeError(w, "reserve table", err)
		return
	}

	h.floor.Invalidate(r.Context(), branchID)
	h.events.Broadcast(branchID, ws.EventTableChanged, dbTableToResponse(*table))
	writeJSON(w, http.StatusOK, dbTableToResponse(*table))
}

// --- Helpers ---

// branchRequest parses {bid} and loads the caller's claims; on failure the
// error has already been written.
func branchRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, *auth.Claims, bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return uuid.Nil, nil, false
	}

	claims, ok := requestClaims(w, r)
	if !ok {
		return uuid.Nil, nil, false
	}

	return branchID, claims, true
}

func dbTableToResponse(t database.DiningTable) tableResponse {
	resp := tableResponse{
		ID:               t.ID,
		BranchID:         t.BranchID,
		Number:           t.Number,
		Capacity:         t.Capacity,
		Status:           t.Status,
		AccumulatedTotal: numericToString(t.AccumulatedTotal),
	}
	if t.CurrentOrderID.Valid {
		id := uuid.UUID(t.CurrentOrderID.Bytes)
		resp.CurrentOrderID = &id
	}
	if t.OpenedAt.Valid {
		resp.OpenedAt = &t.OpenedAt.Time
	}
	return resp
}
