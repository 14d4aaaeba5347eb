package fulfillment

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/inventory"
	"github.com/fernwood-goods/storefront-backend/internal/orders"
	"github.com/fernwood-goods/storefront-backend/internal/products"
	"github.com/fernwood-goods/storefront-backend/pkg/db"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	"github.com/fernwood-goods/storefront-backend/pkg/db/types"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
	"github.com/fernwood-goods/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	paymentStatusPaid = "paid"
	orderStatusPaid   = "PAID"
	defaultCurrency   = "USD"

	sourceWebhook = "webhook"
)

// errConcurrentDuplicate marks a unique-violation on the order insert: a
// concurrent delivery of the same session won the race. Mapped to Duplicate
// after the transaction rolls back.
var errConcurrentDuplicate = stdErrors.New("order already committed by concurrent delivery")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result reports where a notification terminated. Order is populated for
// Committed and, when the pre-existing row is at hand, for Duplicate.
type Result struct {
	State State
	Order *models.Order
}

type ServiceParams struct {
	OrderRepo         orders.Repository
	ProductRepo       products.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.FulfillmentMetrics
}

// Service is the fulfillment reconciler: it turns a payment-completion
// notification into exactly one durable order, reserving stock atomically.
type Service struct {
	orderRepo   orders.Repository
	productRepo products.Repository
	txRunner    txRunner
	log         *logger.Logger
	metrics     *metrics.FulfillmentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		orderRepo:   params.OrderRepo,
		productRepo: params.ProductRepo,
		txRunner:    params.TransactionRunner,
		log:         params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Reconcile runs the pipeline: duplicate gate, payment gate, cart derivation,
// then one transaction covering reservation and order insert. Duplicate and
// Rejected are successful outcomes; the caller acknowledges the notification
// without retry.
func (s *Service) Reconcile(ctx context.Context, notification *CheckoutNotification) (*Result, error) {
	if notification == nil || notification.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification session id required")
	}
	if s.log != nil {
		ctx = s.log.WithSessionID(ctx, notification.SessionID)
	}

	// The pre-check is the cheap gate; the unique constraint on the session
	// id backstops concurrent deliveries that both pass it.
	existing, err := s.orderRepo.FindByStripeSessionID(ctx, notification.SessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by session")
	}
	if existing != nil {
		s.info(ctx, "duplicate notification ignored")
		s.metrics.IncWebhookEvent(string(StateDuplicate))
		return &Result{State: StateDuplicate, Order: existing}, nil
	}

	if notification.PaymentStatus != paymentStatusPaid {
		s.info(ctx, "unpaid session acknowledged without order")
		s.metrics.IncWebhookEvent(string(StateRejected))
		return &Result{State: StateRejected}, nil
	}

	lines, err := s.deriveCart(notification)
	if err != nil {
		s.metrics.IncWebhookEvent(string(StateRejected))
		return nil, err
	}

	reservations, err := toReservations(lines)
	if err != nil {
		s.metrics.IncWebhookEvent(string(StateRejected))
		return nil, err
	}

	var order *models.Order
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := inventory.Reserve(ctx, tx, reservations); err != nil {
			return err
		}

		primary := reservations[0]
		product, err := s.productRepo.WithTx(tx).FindByID(ctx, primary.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load primary product")
		}

		order = buildOrder(notification, lines, primary, product)
		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errConcurrentDuplicate
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		return nil
	})
	if err != nil {
		if stdErrors.Is(err, errConcurrentDuplicate) {
			s.info(ctx, "concurrent delivery lost insert race, treated as duplicate")
			s.metrics.IncWebhookEvent(string(StateDuplicate))
			return &Result{State: StateDuplicate}, nil
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			s.metrics.IncStockFailure(sourceWebhook)
		}
		s.metrics.IncWebhookEvent("failed")
		return nil, err
	}

	if s.log != nil {
		ctx = s.log.WithOrderID(ctx, order.ID.String())
	}
	s.info(ctx, "order committed")
	s.metrics.IncWebhookEvent(string(StateCommitted))
	s.metrics.IncOrderCreated(sourceWebhook)
	return &Result{State: StateCommitted, Order: order}, nil
}

// deriveCart resolves notification payload to normalized lines. Structured
// metadata wins; the legacy flat fields back it up; neither yields a line is
// a client-class rejection so the provider stops retrying.
func (s *Service) deriveCart(notification *CheckoutNotification) ([]cart.Line, error) {
	if raw := cart.ParseMetadata(notification.CartJSON); raw != nil {
		lines, err := cart.Normalize(raw, cart.CustomerLimits)
		if err == nil {
			return reconcileQuantity(lines, notification), nil
		}
	}

	if notification.LegacyProductID != "" {
		qty := notification.LegacyQuantity
		if qty == "" {
			qty = "1"
		}
		lines, err := cart.Normalize([]cart.RawLine{
			{ProductID: notification.LegacyProductID, Quantity: qty},
		}, cart.CustomerLimits)
		if err == nil {
			return reconcileQuantity(lines, notification), nil
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeMissingMetadata, "notification carries no resolvable cart")
}

// reconcileQuantity applies the provider's own line-item count on single-line
// carts. The provider's figure is what was actually paid for, so it overrides
// the metadata-declared quantity.
func reconcileQuantity(lines []cart.Line, notification *CheckoutNotification) []cart.Line {
	if len(lines) != 1 {
		return lines
	}
	if qty := notification.ProviderQuantity(); qty > 0 {
		lines[0].Quantity = qty
	}
	return lines
}

func toReservations(lines []cart.Line) ([]inventory.Reservation, error) {
	reservations := make([]inventory.Reservation, 0, len(lines))
	for _, line := range lines {
		id, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeMissingMetadata, "cart references malformed product id").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		reservations = append(reservations, inventory.Reservation{ProductID: id, Qty: line.Quantity})
	}
	return reservations, nil
}

func buildOrder(notification *CheckoutNotification, lines []cart.Line, primary inventory.Reservation, product *models.Product) *models.Order {
	currency := notification.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	snapshot := make(types.OrderLineSnapshots, 0, len(notification.LineItems))
	for _, item := range notification.LineItems {
		snapshot = append(snapshot, types.OrderLineSnapshot{
			Description:   item.Description,
			Quantity:      item.Quantity,
			SubtotalCents: item.SubtotalCents,
			TotalCents:    item.TotalCents,
			Currency:      item.Currency,
		})
	}
	if len(snapshot) == 0 {
		// Provider sent no expanded line items; snapshot the derived cart so
		// the order still records what was purchased.
		for _, line := range lines {
			description := line.ProductID
			subtotal := 0
			if product != nil && line.ProductID == product.ID.String() {
				description = product.Title
				subtotal = line.Quantity * product.PriceCents
			}
			snapshot = append(snapshot, types.OrderLineSnapshot{
				Description:   description,
				Quantity:      line.Quantity,
				SubtotalCents: subtotal,
				TotalCents:    subtotal,
				Currency:      currency,
			})
		}
	}

	sku := notification.LegacySKU
	if product != nil {
		sku = product.SKU
	}

	return &models.Order{
		StripeSessionID:    notification.SessionID,
		PaymentIntentID:    notification.PaymentIntentID,
		Status:             orderStatusPaid,
		ProductID:          primary.ProductID,
		SKU:                sku,
		Quantity:           primary.Qty,
		LineItems:          snapshot,
		CustomerEmail:      notification.CustomerEmail,
		CustomerPhone:      notification.CustomerPhone,
		ShippingName:       notification.ShippingName,
		ShippingLine1:      notification.ShippingLine1,
		ShippingLine2:      notification.ShippingLine2,
		ShippingCity:       notification.ShippingCity,
		ShippingState:      notification.ShippingState,
		ShippingPostalCode: notification.ShippingPostalCode,
		ShippingCountry:    notification.ShippingCountry,
		AmountTotalCents:   notification.AmountTotalCents,
		Currency:           currency,
	}
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.log != nil {
		s.log.Info(ctx, msg)
	}
}
