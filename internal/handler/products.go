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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/database"
)

// ProductStore defines the database methods needed by catalog handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	ListProducts(ctx context.Context, branchID uuid.UUID) ([]database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	CreateModifierGroup(ctx context.Context, arg database.CreateModifierGroupParams) (database.ModifierGroup, error)
	ListModifierGroupsByProduct(ctx context.Context, productID uuid.UUID) ([]database.ModifierGroup, error)
	CreateModifier(ctx context.Context, arg database.CreateModifierParams) (database.Modifier, error)
	ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error)
}

// ProductHandler handles catalog endpoints. Catalog edits never touch
// existing order lines: prices are snapshotted at add time.
type ProductHandler struct {
	store ProductStore
}

func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterRoutes registers the catalog read endpoints every role needs for
// taking orders. Expected to be mounted at /branches/{bid}/products
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/modifiers", h.ListModifiers)
}

// RegisterAdminRoutes registers the catalog write endpoints; the router
// gates these behind the manager roles.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/modifier-groups", h.CreateGroup)
	r.Post("/{id}/modifier-groups/{gid}/modifiers", h.CreateModifier)
}

// --- Request / Response types ---

type productRequest struct {
	Name      string `json:"name"`
	BasePrice string `json:"base_price"`
	Active    *bool  `json:"active"`
}

type productResponse struct {
	ID        uuid.UUID `json:"id"`
	BranchID  uuid.UUID `json:"branch_id"`
	Name      string    `json:"name"`
	BasePrice string    `json:"base_price"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type modifierGroupRequest struct {
	Name string `json:"name"`
}

type modifierGroupResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
}

type modifierRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type modifierResponse struct {
	ID      uuid.UUID `json:"id"`
	GroupID uuid.UUID `json:"group_id"`
	Name    string    `json:"name"`
	Price   string    `json:"price"`
	Active  bool      `json:"active"`
}

// --- Handlers ---

// Create handles POST /branches/{bid}/products.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, claims, ok := branchRequest(w, r)
	if !ok {
		return
	}

	req, price, ok := decodeProductRequest(w, r)
	if !ok {
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		RestaurantID: claims.RestaurantID,
		BranchID:     branchID,
		Name:         req.Name,
		BasePrice:    price,
	})
	if err != nil {
		writeError(w, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, dbProductToResponse(product))
}

// List handles GET /branches/{bid}/products.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}

	products, err := h.store.ListProducts(r.Context(), branchID)
	if err != nil {
		writeError(w, "list products", err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = dbProductToResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /branches/{bid}/products/{id}.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := productRef(w, r)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: productID, BranchID: branchID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, dbProductToResponse(product))
}

// Update handles PUT /branches/{bid}/products/{id}. A price change only
// affects lines added after it; a deactivated product stays on open orders.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := productRef(w, r)
	if !ok {
		return
	}

	req, price, ok := decodeProductRequest(w, r)
	if !ok {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:        productID,
		BranchID:  branchID,
		Name:      req.Name,
		BasePrice: price,
		Active:    active,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeError(w, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, dbProductToResponse(product))
}

// CreateGroup handles POST /branches/{bid}/products/{id}/modifier-groups.
func (h *ProductHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := productRef(w, r)
	if !ok {
		return
	}

	var req modifierGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	// The group hangs off the product; verify it belongs to this branch.
	if _, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: productID, BranchID: branchID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeError(w, "get product for group", err)
		return
	}

	group, err := h.store.CreateModifierGroup(r.Context(), database.CreateModifierGroupParams{
		ProductID: productID,
		Name:      req.Name,
	})
	if err != nil {
		writeError(w, "create modifier group", err)
		return
	}
	writeJSON(w, http.StatusCreated, modifierGroupResponse{ID: group.ID, ProductID: group.ProductID, Name: group.Name})
}

// CreateModifier handles POST .../modifier-groups/{gid}/modifiers.
func (h *ProductHandler) CreateModifier(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := productRef(w, r)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	var req modifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	// Zero is a legal modifier price ("sin hielo" costs nothing).
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be a non-negative decimal"})
		return
	}

	groups, err := h.store.ListModifierGroupsByProduct(r.Context(), productID)
	if err != nil {
		writeError(w, "list modifier groups", err)
		return
	}
	owned := false
	for _, g := range groups {
		if g.ID == groupID {
			owned = true
			break
		}
	}
	if !owned {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier group not found"})
		return
	}
	if _, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: productID, BranchID: branchID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeError(w, "get product for modifier", err)
		return
	}

	mod, err := h.store.CreateModifier(r.Context(), database.CreateModifierParams{
		GroupID: groupID,
		Name:    req.Name,
		Price:   decimalNumeric(price),
	})
	if err != nil {
		writeError(w, "create modifier", err)
		return
	}
	writeJSON(w, http.StatusCreated, dbModifierToResponse(mod))
}

// ListModifiers handles GET /branches/{bid}/products/{id}/modifiers: the
// full allowed set the ledger validates against.
func (h *ProductHandler) ListModifiers(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := productRef(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: productID, BranchID: branchID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeError(w, "get product for modifiers", err)
		return
	}

	mods, err := h.store.ListModifiersForProduct(r.Context(), productID)
	if err != nil {
		writeError(w, "list modifiers", err)
		return
	}

	resp := make([]modifierResponse, len(mods))
	for i, m := range mods {
		resp[i] = dbModifierToResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func productRef(w http.ResponseWriter, r *http.Request) (branchID, productID uuid.UUID, ok bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return uuid.Nil, uuid.Nil, false
	}
	productID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return branchID, productID, true
}

func decodeProductRequest(w http.ResponseWriter, r *http.Request) (productRequest, pgtype.Numeric, bool) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, pgtype.Numeric{}, false
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return req, pgtype.Numeric{}, false
	}
	price, err := decimal.NewFromString(req.BasePrice)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_price must be a non-negative decimal"})
		return req, pgtype.Numeric{}, false
	}
	return req, decimalNumeric(price), true
}

// decimalNumeric converts a decimal into the DB numeric type.
func decimalNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func dbProductToResponse(p database.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		BranchID:  p.BranchID,
		Name:      p.Name,
		BasePrice: numericToString(p.BasePrice),
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

func dbModifierToResponse(m database.Modifier) modifierResponse {
	return modifierResponse{
		ID:      m.ID,
		GroupID: m.GroupID,
		Name:    m.Name,
		Price:   numericToString(m.Price),
		Active:  m.Active,
	}
}
