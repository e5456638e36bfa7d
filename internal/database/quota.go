package database

import (
	"context"

	"github.com/google/uuid"
)

// GetPlanForRestaurant resolves the subscription plan row the tenant is on.
func (q *Queries) GetPlanForRestaurant(ctx context.Context, restaurantID uuid.UUID) (Plan, error) {
	var p Plan
	err := q.db.QueryRow(ctx, `
		SELECT p.id, p.code, p.max_tables, p.max_open_orders, p.max_users
		FROM plans p
		JOIN restaurants r ON r.plan_id = p.id
		WHERE r.id = $1`,
		restaurantID).
		Scan(&p.ID, &p.Code, &p.MaxTables, &p.MaxOpenOrders, &p.MaxUsers)
	return p, err
}

// CountOpenOrders counts a tenant's non-terminal orders across all branches.
func (q *Queries) CountOpenOrders(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE restaurant_id = $1
		  AND status IN ('OPEN', 'IN_PREPARATION', 'PENDING_PAYMENT')`,
		restaurantID).Scan(&n)
	return n, err
}

// CountActiveTables counts a tenant's provisioned (not soft-deactivated)
// tables across all branches.
func (q *Queries) CountActiveTables(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM dining_tables
		WHERE restaurant_id = $1 AND active`,
		restaurantID).Scan(&n)
	return n, err
}

// CountUsers counts a tenant's staff accounts.
func (q *Queries) CountUsers(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM users
		WHERE restaurant_id = $1`,
		restaurantID).Scan(&n)
	return n, err
}
