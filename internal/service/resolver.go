package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/apperr"
	"github.com/comanda-pos/api/internal/database"
)

// ResolverStore is the catalog read the resolver needs.
// Satisfied by *database.Queries.
type ResolverStore interface {
	ListModifiersForProduct(ctx context.Context, productID uuid.UUID) ([]database.Modifier, error)
}

// RequestedModifier is one add-on asked for on a new line item.
type RequestedModifier struct {
	ModifierID uuid.UUID
	Quantity   int32
}

// ResolvedModifier carries the validated modifier with its price snapshotted
// at resolve time.
type ResolvedModifier struct {
	Modifier database.Modifier
	Quantity int32
	Price    decimal.Decimal
}

// ResolveModifiers validates the requested add-ons against the product's
// configured modifier groups and snapshots their prices. A product with no
// configured groups is a valid state: it resolves any empty request to an
// empty list, and callers still accept a free-text note.
//
// A requested modifier outside the allowed set is rejected, never silently
// dropped; the error names the offending modifier.
func ResolveModifiers(ctx context.Context, store ResolverStore, productID uuid.UUID, requested []RequestedModifier) ([]ResolvedModifier, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	allowed, err := store.ListModifiersForProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list modifiers for product: %w", err)
	}

	byID := make(map[uuid.UUID]database.Modifier, len(allowed))
	for _, m := range allowed {
		byID[m.ID] = m
	}

	resolved := make([]ResolvedModifier, 0, len(requested))
	for i, req := range requested {
		if req.Quantity <= 0 {
			return nil, apperr.Validation("modifiers[%d]: quantity must be > 0", i)
		}
		m, ok := byID[req.ModifierID]
		if !ok {
			return nil, apperr.Validation("modifier %s is not configured for this product", req.ModifierID)
		}
		resolved = append(resolved, ResolvedModifier{
			Modifier: m,
			Quantity: req.Quantity,
			Price:    numericToDecimal(m.Price),
		})
	}
	return resolved, nil
}
