package enum

// ── Table session states (CHECK constrained in DB) ──

const (
	TableStatusFree           = "FREE"
	TableStatusOccupied       = "OCCUPIED"
	TableStatusPendingPayment = "PENDING_PAYMENT"
	TableStatusReserved       = "RESERVED"
)

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusOpen           = "OPEN"
	OrderStatusInPreparation  = "IN_PREPARATION"
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusClosed         = "CLOSED"
	OrderStatusCancelled      = "CANCELLED"
)

// ── Service types (CHECK constrained in DB) ──

const (
	ServiceTypeDineIn   = "DINE_IN"
	ServiceTypeTakeaway = "TAKEAWAY"
	ServiceTypeDelivery = "DELIVERY"
)

// ── User roles (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleWaiter  = "WAITER"
	UserRoleKitchen = "KITCHEN"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodQR       = "QR"
	PaymentMethodTransfer = "TRANSFER"
)

// ── Subscription plan codes ──

const (
	PlanFree     = "FREE"
	PlanStandard = "STANDARD"
	PlanPremium  = "PREMIUM"
)

// IsTerminalOrderStatus reports whether an order can no longer be mutated.
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusClosed || s == OrderStatusCancelled
}

// IsValidServiceType reports whether the given service type is known.
func IsValidServiceType(s string) bool {
	switch s {
	case ServiceTypeDineIn, ServiceTypeTakeaway, ServiceTypeDelivery:
		return true
	}
	return false
}

// IsValidPaymentMethod reports whether the given payment method is known.
func IsValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodQR, PaymentMethodTransfer:
		return true
	}
	return false
}
