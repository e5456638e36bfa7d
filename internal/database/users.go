package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, restaurant_id, branch_id, email, hashed_password,
	full_name, role, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.RestaurantID, &u.BranchID, &u.Email, &u.HashedPassword,
		&u.FullName, &u.Role, &u.CreatedAt,
	)
	return u, err
}

type CreateUserParams struct {
	RestaurantID   uuid.UUID
	BranchID       uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (restaurant_id, branch_id, email, hashed_password, full_name, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		arg.RestaurantID, arg.BranchID, arg.Email, arg.HashedPassword,
		arg.FullName, arg.Role)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1`,
		email)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`,
		id)
	return scanUser(row)
}

func (q *Queries) ListUsersByBranch(ctx context.Context, branchID uuid.UUID) ([]User, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE branch_id = $1
		ORDER BY full_name`,
		branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
