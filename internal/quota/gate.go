// Package quota enforces per-tenant plan limits before a mutation starts.
// Refusals surface as apperr.ErrQuotaExceeded and pass through the services
// unchanged; the storage rollback rule guarantees a refused call leaves no
// partial rows behind.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
)

// Store defines the DB reads the gate needs. Satisfied by *database.Queries.
type Store interface {
	GetPlanForRestaurant(ctx context.Context, restaurantID uuid.UUID) (database.Plan, error)
	CountOpenOrders(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	CountActiveTables(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	CountUsers(ctx context.Context, restaurantID uuid.UUID) (int64, error)
}

// Gate checks plan limits against live counts. The check is advisory rather
// than serialized: two racing opens can both pass at the limit boundary,
// which the plan tiers tolerate.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

func (g *Gate) plan(ctx context.Context, restaurantID uuid.UUID) (database.Plan, error) {
	plan, err := g.store.GetPlanForRestaurant(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Plan{}, apperr.NotFound("restaurant plan")
		}
		return database.Plan{}, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// CheckOrderOpen refuses when the tenant is at its concurrent open-order
// limit. A zero or negative limit means unlimited.
func (g *Gate) CheckOrderOpen(ctx context.Context, restaurantID uuid.UUID) error {
	plan, err := g.plan(ctx, restaurantID)
	if err != nil {
		return err
	}
	if plan.MaxOpenOrders <= 0 {
		return nil
	}
	n, err := g.store.CountOpenOrders(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("count open orders: %w", err)
	}
	if n >= int64(plan.MaxOpenOrders) {
		return apperr.QuotaExceeded("open orders", plan.MaxOpenOrders)
	}
	return nil
}

// CheckTableProvision refuses when adding one more table would exceed the
// plan's table count.
func (g *Gate) CheckTableProvision(ctx context.Context, restaurantID uuid.UUID) error {
	plan, err := g.plan(ctx, restaurantID)
	if err != nil {
		return err
	}
	if plan.MaxTables <= 0 {
		return nil
	}
	n, err := g.store.CountActiveTables(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	if n >= int64(plan.MaxTables) {
		return apperr.QuotaExceeded("tables", plan.MaxTables)
	}
	return nil
}

// CheckUserProvision refuses when the tenant's staff roster is full.
func (g *Gate) CheckUserProvision(ctx context.Context, restaurantID uuid.UUID) error {
	plan, err := g.plan(ctx, restaurantID)
	if err != nil {
		return err
	}
	if plan.MaxUsers <= 0 {
		return nil
	}
	n, err := g.store.CountUsers(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n >= int64(plan.MaxUsers) {
		return apperr.QuotaExceeded("users", plan.MaxUsers)
	}
	return nil
}
