package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/inventory"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	"github.com/fernwood-goods/storefront-backend/pkg/db/types"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
	"github.com/fernwood-goods/storefront-backend/pkg/metrics"
	"gorm.io/gorm"
)

const (
	manualKeyPrefix = "manual_"
	orderStatusPaid = "PAID"
	defaultCurrency = "USD"

	sourceManual = "manual"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ManualOrderInput is what an operator supplies to create an order without a
// payment notification. Quantities use the admin clamp range.
type ManualOrderInput struct {
	Lines []cart.RawLine

	CustomerEmail string
	CustomerPhone *string

	ShippingName       *string
	ShippingLine1      *string
	ShippingLine2      *string
	ShippingCity       *string
	ShippingState      *string
	ShippingPostalCode *string
	ShippingCountry    *string

	// ShippingCentsOverride skips the calculator's rate when set. The
	// free-shipping threshold still applies on top.
	ShippingCentsOverride *int
}

type ComposerParams struct {
	OrderRepo         Repository
	Calculator        *shipping.Calculator
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.FulfillmentMetrics
}

// Composer materializes operator-entered orders through the same pricing and
// reservation path the webhook reconciler uses.
type Composer struct {
	orderRepo  Repository
	calculator *shipping.Calculator
	txRunner   txRunner
	log        *logger.Logger
	metrics    *metrics.FulfillmentMetrics
}

func NewComposer(params ComposerParams) (*Composer, error) {
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("shipping calculator required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Composer{
		orderRepo:  params.OrderRepo,
		calculator: params.Calculator,
		txRunner:   params.TransactionRunner,
		log:        params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// Compose validates the input, prices it, reserves stock, and inserts the
// order in one transaction. Every call creates a new order under a fresh
// synthesized idempotency key.
func (c *Composer) Compose(ctx context.Context, input ManualOrderInput) (*models.Order, error) {
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}

	lines, err := cart.Normalize(input.Lines, cart.AdminLimits)
	if err != nil {
		return nil, err
	}

	country := ""
	if input.ShippingCountry != nil {
		country = *input.ShippingCountry
	}

	var order *models.Order
	err = c.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		// Pricing runs inside the transaction so the snapshot reflects the
		// same catalog rows the reservation decrements.
		quote, err := c.calculator.WithTx(tx).Quote(ctx, lines, country, shipping.MissingFatal)
		if err != nil {
			return err
		}

		if requiresShipping(quote) && !addressComplete(input) {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required for shippable items")
		}

		shippingCents := quote.ShippingCents
		if input.ShippingCentsOverride != nil {
			shippingCents = *input.ShippingCentsOverride
			if shippingCents < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping override must not be negative")
			}
		}
		if quote.FreeShippingThresholdCents != nil && quote.SubtotalCents >= *quote.FreeShippingThresholdCents {
			shippingCents = 0
		}

		reservations := make([]inventory.Reservation, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			reservations = append(reservations, inventory.Reservation{ProductID: line.ProductID, Qty: line.Quantity})
		}
		if err := inventory.Reserve(ctx, tx, reservations); err != nil {
			return err
		}

		order = buildManualOrder(input, email, quote, shippingCents)
		if err := c.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			c.metrics.IncStockFailure(sourceManual)
		}
		return nil, err
	}

	if c.log != nil {
		c.log.Info(c.log.WithOrderID(ctx, order.ID.String()), "manual order created")
	}
	c.metrics.IncOrderCreated(sourceManual)
	return order, nil
}

func buildManualOrder(input ManualOrderInput, email string, quote *shipping.Quote, shippingCents int) *models.Order {
	snapshot := make(types.OrderLineSnapshots, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		snapshot = append(snapshot, types.OrderLineSnapshot{
			Description:   line.Product.Title,
			Quantity:      line.Quantity,
			SubtotalCents: line.SubtotalCents,
			TotalCents:    line.SubtotalCents,
			Currency:      defaultCurrency,
		})
	}

	primary := quote.Lines[0]
	return &models.Order{
		StripeSessionID:    manualIdempotencyKey(),
		Status:             orderStatusPaid,
		ProductID:          primary.ProductID,
		SKU:                primary.Product.SKU,
		Quantity:           primary.Quantity,
		LineItems:          snapshot,
		CustomerEmail:      &email,
		CustomerPhone:      input.CustomerPhone,
		ShippingName:       input.ShippingName,
		ShippingLine1:      input.ShippingLine1,
		ShippingLine2:      input.ShippingLine2,
		ShippingCity:       input.ShippingCity,
		ShippingState:      input.ShippingState,
		ShippingPostalCode: input.ShippingPostalCode,
		ShippingCountry:    input.ShippingCountry,
		AmountTotalCents:   quote.SubtotalCents + shippingCents,
		Currency:           defaultCurrency,
	}
}

func requiresShipping(quote *shipping.Quote) bool {
	for _, line := range quote.Lines {
		if line.Product.RequiresShipping {
			return true
		}
	}
	return false
}

func addressComplete(input ManualOrderInput) bool {
	required := []*string{input.ShippingLine1, input.ShippingCity, input.ShippingPostalCode, input.ShippingCountry}
	for _, field := range required {
		if field == nil || strings.TrimSpace(*field) == "" {
			return false
		}
	}
	return true
}

// manualIdempotencyKey synthesizes the unique key manual orders store in the
// session-id column. 12 random bytes keep collisions out of reach.
func manualIdempotencyKey() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return manualKeyPrefix + hex.EncodeToString(buf)
}
