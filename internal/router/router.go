package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-pos/api/internal/cache"
	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/comanda-pos/api/internal/metrics"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/notify"
	"github.com/comanda-pos/api/internal/quota"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, branch scoping, and role-based middleware as
// needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, floor *cache.Floor) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://pos.comanda.app", "https://stg-pos.comanda.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/branches/{bid}/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	events := notify.New(hub, cfg.AmqpURL)
	gate := quota.NewGate(queries)

	session := service.NewSession(pool, func(db database.DBTX) service.SessionStore {
		return database.New(db)
	}, gate)
	ledger := service.NewLedger(pool, func(db database.DBTX) service.LedgerStore {
		return database.New(db)
	})
	settler := service.NewSettler(pool, func(db database.DBTX) service.SettlementStore {
		return database.New(db)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/branches/{bid}", func(r chi.Router) {
			r.Use(mw.RequireBranch)

			tableHandler := handler.NewTableHandler(queries, session, gate, events, floor)
			r.Route("/tables", func(r chi.Router) {
				tableHandler.RegisterRoutes(r)
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
					tableHandler.RegisterAdminRoutes(r)
				})
			})

			orderHandler := handler.NewOrderHandler(ledger, session, settler, queries, events, floor)
			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)
			})

			productHandler := handler.NewProductHandler(queries)
			r.Route("/products", func(r chi.Router) {
				productHandler.RegisterRoutes(r)
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
					productHandler.RegisterAdminRoutes(r)
				})
			})

			userHandler := handler.NewUserHandler(queries, gate)
			r.Route("/users", func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
				userHandler.RegisterRoutes(r)
			})
		})
	})

	return r
}
