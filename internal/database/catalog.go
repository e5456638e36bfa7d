package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, restaurant_id, branch_id, name, base_price, active,
	created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.RestaurantID, &p.BranchID, &p.Name, &p.BasePrice, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

type CreateProductParams struct {
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	Name         string
	BasePrice    pgtype.Numeric
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (restaurant_id, branch_id, name, base_price)
		VALUES ($1, $2, $3, $4)
		RETURNING `+productColumns,
		arg.RestaurantID, arg.BranchID, arg.Name, arg.BasePrice)
	return scanProduct(row)
}

type GetProductParams struct {
	ID       uuid.UUID
	BranchID uuid.UUID
}

func (q *Queries) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND branch_id = $2`,
		arg.ID, arg.BranchID)
	return scanProduct(row)
}

// GetProductForOrder is the ledger's read path: inactive products cannot be
// added to an order.
func (q *Queries) GetProductForOrder(ctx context.Context, arg GetProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND branch_id = $2 AND active`,
		arg.ID, arg.BranchID)
	return scanProduct(row)
}

func (q *Queries) ListProducts(ctx context.Context, branchID uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE branch_id = $1 AND active
		ORDER BY name`,
		branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type UpdateProductParams struct {
	ID        uuid.UUID
	BranchID  uuid.UUID
	Name      string
	BasePrice pgtype.Numeric
	Active    bool
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET name = $3, base_price = $4, active = $5, updated_at = now()
		WHERE id = $1 AND branch_id = $2
		RETURNING `+productColumns,
		arg.ID, arg.BranchID, arg.Name, arg.BasePrice, arg.Active)
	return scanProduct(row)
}

// --- Modifier groups ---

type CreateModifierGroupParams struct {
	ProductID uuid.UUID
	Name      string
}

func (q *Queries) CreateModifierGroup(ctx context.Context, arg CreateModifierGroupParams) (ModifierGroup, error) {
	var g ModifierGroup
	err := q.db.QueryRow(ctx, `
		INSERT INTO modifier_groups (product_id, name)
		VALUES ($1, $2)
		RETURNING id, product_id, name, created_at`,
		arg.ProductID, arg.Name).
		Scan(&g.ID, &g.ProductID, &g.Name, &g.CreatedAt)
	return g, err
}

func (q *Queries) ListModifierGroupsByProduct(ctx context.Context, productID uuid.UUID) ([]ModifierGroup, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, product_id, name, created_at
		FROM modifier_groups
		WHERE product_id = $1
		ORDER BY created_at`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []ModifierGroup
	for rows.Next() {
		var g ModifierGroup
		if err := rows.Scan(&g.ID, &g.ProductID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// --- Modifiers ---

const modifierColumns = `id, group_id, name, price, active, created_at`

func scanModifier(row pgx.Row) (Modifier, error) {
	var m Modifier
	err := row.Scan(&m.ID, &m.GroupID, &m.Name, &m.Price, &m.Active, &m.CreatedAt)
	return m, err
}

type CreateModifierParams struct {
	GroupID uuid.UUID
	Name    string
	Price   pgtype.Numeric
}

func (q *Queries) CreateModifier(ctx context.Context, arg CreateModifierParams) (Modifier, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO modifiers (group_id, name, price)
		VALUES ($1, $2, $3)
		RETURNING `+modifierColumns,
		arg.GroupID, arg.Name, arg.Price)
	return scanModifier(row)
}

// ListModifiersForProduct returns every active modifier the product's
// configured groups allow. The resolver checks requested modifiers against
// exactly this set.
func (q *Queries) ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]Modifier, error) {
	rows, err := q.db.Query(ctx, `
		SELECT m.id, m.group_id, m.name, m.price, m.active, m.created_at
		FROM modifiers m
		JOIN modifier_groups g ON g.id = m.group_id
		WHERE g.product_id = $1 AND m.active
		ORDER BY m.created_at`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []Modifier
	for rows.Next() {
		m, err := scanModifier(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
