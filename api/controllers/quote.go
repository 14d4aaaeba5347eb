package controllers

import (
	"net/http"

	"github.com/fernwood-goods/storefront-backend/api/responses"
	"github.com/fernwood-goods/storefront-backend/api/validators"
	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
)

type quoteItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  any    `json:"quantity"`
}

type quoteRequest struct {
	Items   []quoteItem `json:"items" validate:"required,min=1,dive"`
	Country string      `json:"country"`
}

type quoteResponse struct {
	SubtotalCents              int    `json:"subtotalCents"`
	ShippingCents              int    `json:"shippingCents"`
	TotalWeightGrams           int    `json:"totalWeightGrams"`
	FreeShippingThresholdCents *int   `json:"freeShippingThresholdCents"`
	ZoneName                   string `json:"zoneName"`
}

// ShippingQuote prices a cart for the public storefront. Unknown products are
// skipped, and internal failures surface as a generic error to customers.
func ShippingQuote(calculator *shipping.Calculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if calculator == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		raw := make([]cart.RawLine, 0, len(req.Items))
		for _, item := range req.Items {
			raw = append(raw, cart.RawLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		lines, err := cart.Normalize(raw, cart.CustomerLimits)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		quote, err := calculator.Quote(ctx, lines, req.Country, shipping.MissingSkip)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to calculate shipping"))
			return
		}

		responses.WriteSuccess(w, quoteResponse{
			SubtotalCents:              quote.SubtotalCents,
			ShippingCents:              quote.ShippingCents,
			TotalWeightGrams:           quote.TotalWeightGrams,
			FreeShippingThresholdCents: quote.FreeShippingThresholdCents,
			ZoneName:                   quote.ZoneName,
		})
	}
}
