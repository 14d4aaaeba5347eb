package fulfillment

import (
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// Metadata keys written by checkout-session creation. "cart" carries the
// structured line list; the flat keys are the legacy single-item shape still
// produced by older sessions.
const (
	metadataCartKey      = "cart"
	metadataProductIDKey = "product_id"
	metadataSKUKey       = "sku"
	metadataQuantityKey  = "quantity"
)

// ProviderLine is one purchased line as the payment provider reported it,
// snapshotted verbatim onto the order.
type ProviderLine struct {
	Description   string
	Quantity      int
	SubtotalCents int
	TotalCents    int
	Currency      string
}

// CheckoutNotification is the provider-agnostic view of a payment-completion
// event. Everything the reconciler needs is carried here so the pipeline can
// be exercised without a live Stripe payload.
type CheckoutNotification struct {
	SessionID       string
	PaymentStatus   string
	PaymentIntentID *string

	CustomerEmail *string
	CustomerPhone *string

	ShippingName       *string
	ShippingLine1      *string
	ShippingLine2      *string
	ShippingCity       *string
	ShippingState      *string
	ShippingPostalCode *string
	ShippingCountry    *string

	// CartJSON is the raw structured metadata, empty when the session carried
	// none. The legacy flat fields back it up.
	CartJSON        string
	LegacyProductID string
	LegacySKU       string
	LegacyQuantity  string

	AmountTotalCents int
	Currency         string
	LineItems        []ProviderLine
}

// FromCheckoutSession maps a Stripe checkout session onto a notification.
// Every nested pointer on the session is optional in webhook payloads, so the
// mapping tolerates all of them being absent.
func FromCheckoutSession(session *stripe.CheckoutSession) *CheckoutNotification {
	if session == nil {
		return nil
	}

	notification := &CheckoutNotification{
		SessionID:        session.ID,
		PaymentStatus:    string(session.PaymentStatus),
		AmountTotalCents: int(session.AmountTotal),
		Currency:         strings.ToUpper(string(session.Currency)),
	}

	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		id := session.PaymentIntent.ID
		notification.PaymentIntentID = &id
	}

	if session.Metadata != nil {
		notification.CartJSON = session.Metadata[metadataCartKey]
		notification.LegacyProductID = session.Metadata[metadataProductIDKey]
		notification.LegacySKU = session.Metadata[metadataSKUKey]
		notification.LegacyQuantity = session.Metadata[metadataQuantityKey]
	}

	if details := session.CustomerDetails; details != nil {
		notification.CustomerEmail = optional(details.Email)
		notification.CustomerPhone = optional(details.Phone)
		notification.ShippingName = optional(details.Name)
		if addr := details.Address; addr != nil {
			notification.ShippingLine1 = optional(addr.Line1)
			notification.ShippingLine2 = optional(addr.Line2)
			notification.ShippingCity = optional(addr.City)
			notification.ShippingState = optional(addr.State)
			notification.ShippingPostalCode = optional(addr.PostalCode)
			notification.ShippingCountry = optional(addr.Country)
		}
	}

	if session.LineItems != nil {
		for _, item := range session.LineItems.Data {
			if item == nil {
				continue
			}
			notification.LineItems = append(notification.LineItems, ProviderLine{
				Description:   item.Description,
				Quantity:      int(item.Quantity),
				SubtotalCents: int(item.AmountSubtotal),
				TotalCents:    int(item.AmountTotal),
				Currency:      strings.ToUpper(string(item.Currency)),
			})
		}
	}

	return notification
}

// ProviderQuantity sums the quantity across all provider line items. Zero
// means the provider reported no line items.
func (n *CheckoutNotification) ProviderQuantity() int {
	total := 0
	for _, item := range n.LineItems {
		total += item.Quantity
	}
	return total
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
