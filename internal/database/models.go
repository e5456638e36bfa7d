package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Restaurant struct {
	ID        uuid.UUID
	Name      string
	PlanID    uuid.UUID
	CreatedAt time.Time
}

type Plan struct {
	ID            uuid.UUID
	Code          string
	MaxTables     int32
	MaxOpenOrders int32
	MaxUsers      int32
}

type Branch struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Address      pgtype.Text
	CreatedAt    time.Time
}

type User struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	BranchID       uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	CreatedAt      time.Time
}

// DiningTable is one physical seating unit ("mesa") within a branch.
// AccumulatedTotal mirrors the attached order's total; it is never
// independently authoritative.
type DiningTable struct {
	ID               uuid.UUID
	RestaurantID     uuid.UUID
	BranchID         uuid.UUID
	Number           int32
	Capacity         int32
	Status           string
	AccumulatedTotal pgtype.Numeric
	CurrentOrderID   pgtype.UUID
	OpenedAt         pgtype.Timestamptz
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Order is one customer tab ("venta"), open until settled or cancelled.
type Order struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	TableID      pgtype.UUID
	OrderNumber  string
	ServiceType  string
	Status       string
	Notes        pgtype.Text
	TotalAmount  pgtype.Numeric
	OpenedAt     time.Time
	ClosedAt     pgtype.Timestamptz
	CancelReason pgtype.Text
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderItem snapshots the product name and unit price at add time; catalog
// changes never retroactively alter it. Voids flip Active, never delete.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Subtotal    pgtype.Numeric
	Notes       pgtype.Text
	Active      bool
	VoidedAt    pgtype.Timestamptz
	CreatedAt   time.Time
}

type OrderItemModifier struct {
	ID           uuid.UUID
	OrderItemID  uuid.UUID
	ModifierID   uuid.UUID
	ModifierName string
	Quantity     int32
	UnitPrice    pgtype.Numeric
	CreatedAt    time.Time
}

type Product struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	BranchID     uuid.UUID
	Name         string
	BasePrice    pgtype.Numeric
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ModifierGroup struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Modifier struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Name      string
	Price     pgtype.Numeric
	Active    bool
	CreatedAt time.Time
}

// Settlement is the terminal payment record handed to the cash-reconciliation
// collaborator.
type Settlement struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	PaymentMethod  string
	Amount         pgtype.Numeric
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	ProcessedBy    uuid.UUID
	ProcessedAt    time.Time
}
