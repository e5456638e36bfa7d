package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/comanda-pos/api/internal/middleware"
)

type mockProductStore struct {
	createProductFn               func(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	getProductFn                  func(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	listProductsFn                func(ctx context.Context, branchID uuid.UUID) ([]database.Product, error)
	updateProductFn               func(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	createModifierGroupFn         func(ctx context.Context, arg database.CreateModifierGroupParams) (database.ModifierGroup, error)
	listModifierGroupsByProductFn func(ctx context.Context, productID uuid.UUID) ([]database.ModifierGroup, error)
	createModifierFn              func(ctx context.Context, arg database.CreateModifierParams) (database.Modifier, error)
	listModifiersForProductFn     func(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error)
}

func (m *mockProductStore) CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error) {
	if m.createProductFn != nil {
		return m.createProductFn(ctx, arg)
	}
	return database.Product{}, pgx.ErrNoRows
}
func (m *mockProductStore) GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, arg)
	}
	return database.Product{}, pgx.ErrNoRows
}
func (m *mockProductStore) ListProducts(ctx context.Context, branchID uuid.UUID) ([]database.Product, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, branchID)
	}
	return nil, nil
}
func (m *mockProductStore) UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error) {
	if m.updateProductFn != nil {
		return m.updateProductFn(ctx, arg)
	}
	return database.Product{}, pgx.ErrNoRows
}
func (m *mockProductStore) CreateModifierGroup(ctx context.Context, arg database.CreateModifierGroupParams) (database.ModifierGroup, error) {
	if m.createModifierGroupFn != nil {
		return m.createModifierGroupFn(ctx, arg)
	}
	return database.ModifierGroup{}, pgx.ErrNoRows
}
func (m *mockProductStore) ListModifierGroupsByProduct(ctx context.Context, productID uuid.UUID) ([]database.ModifierGroup, error) {
	if m.listModifierGroupsByProductFn != nil {
		return m.listModifierGroupsByProductFn(ctx, productID)
	}
	return nil, nil
}
func (m *mockProductStore) CreateModifier(ctx context.Context, arg database.CreateModifierParams) (database.Modifier, error) {
	if m.createModifierFn != nil {
		return m.createModifierFn(ctx, arg)
	}
	return database.Modifier{}, pgx.ErrNoRows
}
func (m *mockProductStore) ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error) {
	if m.listModifiersForProductFn != nil {
		return m.listModifiersForProductFn(ctx, productID)
	}
	return nil, nil
}

func setupProductRouter(store *mockProductStore) *chi.Mux {
	if store == nil {
		store = &mockProductStore{}
	}
	h := handler.NewProductHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/branches/{bid}", func(r chi.Router) {
		r.Use(middleware.RequireBranch)
		r.Route("/products", func(r chi.Router) {
			h.RegisterRoutes(r)
			h.RegisterAdminRoutes(r)
		})
	})
	return r
}

func testProduct(branchID, productID uuid.UUID, name, price string) database.Product {
	return database.Product{
		ID:           productID,
		RestaurantID: uuid.New(),
		BranchID:     branchID,
		Name:         name,
		BasePrice:    testNumeric(price),
		Active:       true,
	}
}

func TestCreateProduct_HappyPath(t *testing.T) {
	branchID := uuid.New()

	store := &mockProductStore{
		createProductFn: func(ctx context.Context, arg database.CreateProductParams) (database.Product, error) {
			return testProduct(branchID, uuid.New(), arg.Name, "7.50"), nil
		},
	}

	router := setupProductRouter(store)
	rr := doAuthRequest(t, router, "POST", "/branches/"+branchID.String()+"/products", map[string]interface{}{
		"name":       "Lomo Saltado",
		"base_price": "7.50",
	}, testClaims(branchID))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["base_price"] != "7.50" {
		t.Errorf("expected base_price 7.50, got %v", resp["base_price"])
	}
}

func TestCreateProduct_NegativePriceRejected(t *testing.T) {
	branchID := uuid.New()

	router := setupProductRouter(nil)
	rr := doAuthRequest(t, router, "POST", "/branches/"+branchID.String()+"/products", map[string]interface{}{
		"name":       "Lomo Saltado",
		"base_price": "-1.00",
	}, testClaims(branchID))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateProduct_NotFound(t *testing.T) {
	branchID := uuid.New()

	router := setupProductRouter(nil)
	rr := doAuthRequest(t, router, "PUT", "/branches/"+branchID.String()+"/products/"+uuid.New().String(), map[string]interface{}{
		"name":       "Lomo Saltado",
		"base_price": "8.00",
	}, testClaims(branchID))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateModifier_ZeroPriceAllowed(t *testing.T) {
	branchID := uuid.New()
	productID := uuid.New()
	groupID := uuid.New()

	store := &mockProductStore{
		getProductFn: func(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
			return testProduct(branchID, productID, "Lomo Saltado", "7.50"), nil
		},
		listModifierGroupsByProductFn: func(ctx context.Context, pid uuid.UUID) ([]database.ModifierGroup, error) {
			return []database.ModifierGroup{{ID: groupID, ProductID: productID, Name: "Extras"}}, nil
		},
		createModifierFn: func(ctx context.Context, arg database.CreateModifierParams) (database.Modifier, error) {
			return database.Modifier{ID: uuid.New(), GroupID: arg.GroupID, Name: arg.Name, Price: arg.Price, Active: true}, nil
		},
	}

	router := setupProductRouter(store)
	path := "/branches/" + branchID.String() + "/products/" + productID.String() + "/modifier-groups/" + groupID.String() + "/modifiers"
	rr := doAuthRequest(t, router, "POST", path, map[string]interface{}{
		"name":  "Sin cebolla",
		"price": "0.00",
	}, testClaims(branchID))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["price"] != "0.00" {
		t.Errorf("expected price 0.00, got %v", resp["price"])
	}
}

func TestCreateModifier_ForeignGroupIs404(t *testing.T) {
	branchID := uuid.New()
	productID := uuid.New()

	store := &mockProductStore{
		getProductFn: func(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
			return testProduct(branchID, productID, "Lomo Saltado", "7.50"), nil
		},
		listModifierGroupsByProductFn: func(ctx context.Context, pid uuid.UUID) ([]database.ModifierGroup, error) {
			return []database.ModifierGroup{{ID: uuid.New(), ProductID: productID, Name: "Extras"}}, nil
		},
	}

	router := setupProductRouter(store)
	path := "/branches/" + branchID.String() + "/products/" + productID.String() + "/modifier-groups/" + uuid.New().String() + "/modifiers"
	rr := doAuthRequest(t, router, "POST", path, map[string]interface{}{
		"name":  "Extra queso",
		"price": "1.50",
	}, testClaims(branchID))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListModifiers_ReturnsAllowedSet(t *testing.T) {
	branchID := uuid.New()
	productID := uuid.New()

	store := &mockProductStore{
		getProductFn: func(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
			return testProduct(branchID, productID, "Lomo Saltado", "7.50"), nil
		},
		listModifiersForProductFn: func(ctx context.Context, pid uuid.UUID) ([]database.Modifier, error) {
			return []database.Modifier{
				{ID: uuid.New(), GroupID: uuid.New(), Name: "Extra queso", Price: testNumeric("1.50"), Active: true},
				{ID: uuid.New(), GroupID: uuid.New(), Name: "Sin cebolla", Price: testNumeric("0.00"), Active: true},
			}, nil
		},
	}

	router := setupProductRouter(store)
	rr := doAuthRequest(t, router, "GET", "/branches/"+branchID.String()+"/products/"+productID.String()+"/modifiers", nil, testClaims(branchID))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 modifiers, got %d", len(resp))
	}
}
