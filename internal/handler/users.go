package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
)

// UserStore defines the database methods needed by user handlers.
type UserStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	ListUsersByBranch(ctx context.Context, branchID uuid.UUID) ([]database.User, error)
}

// UserQuota is the plan check for provisioning staff accounts.
type UserQuota interface {
	CheckUserProvision(ctx context.Context, restaurantID uuid.UUID) error
}

// UserHandler handles staff account endpoints.
type UserHandler struct {
	store UserStore
	quota UserQuota
}

func NewUserHandler(store UserStore, quota UserQuota) *UserHandler {
	return &UserHandler{store: store, quota: quota}
}

// RegisterRoutes registers user endpoints on the given Chi router.
// Expected to be mounted at /branches/{bid}/users
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Create handles POST /branches/{bid}/users. Gated by the plan's staff
// limit.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, claims, ok := branchRequest(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password and full_name are required"})
		return
	}
	if !isValidRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}

	if err := h.quota.CheckUserProvision(r.Context(), claims.RestaurantID); err != nil {
		writeError(w, "check user quota", err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, "hash password", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		RestaurantID:   claims.RestaurantID,
		BranchID:       branchID,
		Email:          req.Email,
		HashedPassword: string(hashed),
		FullName:       req.FullName,
		Role:           req.Role,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already in use"})
			return
		}
		writeError(w, "create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, dbUserToResponse(user))
}

// List handles GET /branches/{bid}/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, _, ok := branchRequest(w, r)
	if !ok {
		return
	}

	users, err := h.store.ListUsersByBranch(r.Context(), branchID)
	if err != nil {
		writeError(w, "list users", err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = dbUserToResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

func isValidRole(role string) bool {
	switch role {
	case enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier,
		enum.UserRoleWaiter, enum.UserRoleKitchen:
		return true
	}
	return false
}
