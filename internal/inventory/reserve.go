package inventory

import (
	"context"

	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reservation is one product decrement requested inside a reservation.
type Reservation struct {
	ProductID uuid.UUID
	Qty       int
}

// Reserve decrements stock for every reservation or fails the whole batch.
// It must run inside the caller's transaction: the first conditional update
// that affects zero rows aborts with INSUFFICIENT_STOCK and the caller's
// rollback undoes any prior decrements.
//
// The WHERE stock >= qty guard is the only concurrency control. The database
// serializes concurrent decrements on the same row, so stock can never go
// negative regardless of how many reservations race.
func Reserve(ctx context.Context, tx *gorm.DB, reservations []Reservation) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "reservation requires a transaction")
	}
	for _, res := range reservations {
		if res.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation product id required")
		}
		if res.Qty < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
		}
	}

	for _, res := range reservations {
		result := tx.WithContext(ctx).Exec(
			"UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?",
			res.Qty, res.ProductID, res.Qty,
		)
		if result.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "decrement stock")
		}
		if result.RowsAffected != 1 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{"product_id": res.ProductID.String(), "requested": res.Qty})
		}
	}
	return nil
}
