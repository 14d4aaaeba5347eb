package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fernwood-goods/storefront-backend/pkg/db/types"
)

// Order is the immutable fulfillment record. StripeSessionID carries the
// unique constraint that makes duplicate notifications a no-op.
type Order struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StripeSessionID string    `gorm:"column:stripe_session_id;not null;uniqueIndex:uq_orders_stripe_session_id"`
	PaymentIntentID *string   `gorm:"column:payment_intent_id"`
	Status          string    `gorm:"column:status;not null;default:'PAID'"`

	// Legacy primary line kept for older consumers; the full purchase lives
	// in LineItems.
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU       string    `gorm:"column:sku;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`

	LineItems types.OrderLineSnapshots `gorm:"column:line_items;type:jsonb"`

	CustomerEmail      *string `gorm:"column:customer_email"`
	CustomerPhone      *string `gorm:"column:customer_phone"`
	ShippingName       *string `gorm:"column:shipping_name"`
	ShippingLine1      *string `gorm:"column:shipping_line1"`
	ShippingLine2      *string `gorm:"column:shipping_line2"`
	ShippingCity       *string `gorm:"column:shipping_city"`
	ShippingState      *string `gorm:"column:shipping_state"`
	ShippingPostalCode *string `gorm:"column:shipping_postal_code"`
	ShippingCountry    *string `gorm:"column:shipping_country"`

	AmountTotalCents int       `gorm:"column:amount_total_cents;not null"`
	Currency         string    `gorm:"column:currency;not null;default:'USD'"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
