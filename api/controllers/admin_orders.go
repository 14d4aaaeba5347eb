package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/fernwood-goods/storefront-backend/api/responses"
	"github.com/fernwood-goods/storefront-backend/api/validators"
	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/orders"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
)

type adminOrderLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  any    `json:"quantity"`
}

type createOrderRequest struct {
	Items []adminOrderLine `json:"items" validate:"required,min=1,dive"`

	CustomerEmail string  `json:"customerEmail" validate:"required,email"`
	CustomerPhone *string `json:"customerPhone"`

	ShippingName       *string `json:"shippingName"`
	ShippingLine1      *string `json:"shippingLine1"`
	ShippingLine2      *string `json:"shippingLine2"`
	ShippingCity       *string `json:"shippingCity"`
	ShippingState      *string `json:"shippingState"`
	ShippingPostalCode *string `json:"shippingPostalCode"`
	ShippingCountry    *string `json:"shippingCountry"`

	ShippingCentsOverride *int `json:"shippingCentsOverride" validate:"omitempty,min=0"`
}

type orderLineResponse struct {
	Description   string `json:"description"`
	Quantity      int    `json:"quantity"`
	SubtotalCents int    `json:"subtotalCents"`
	TotalCents    int    `json:"totalCents"`
	Currency      string `json:"currency"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	IdempotencyKey   string              `json:"idempotencyKey"`
	Status           string              `json:"status"`
	SKU              string              `json:"sku"`
	Quantity         int                 `json:"quantity"`
	LineItems        []orderLineResponse `json:"lineItems"`
	CustomerEmail    *string             `json:"customerEmail"`
	AmountTotalCents int                 `json:"amountTotalCents"`
	Currency         string              `json:"currency"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// OrderComposer is the manual order creation surface.
type OrderComposer interface {
	Compose(ctx context.Context, input orders.ManualOrderInput) (*models.Order, error)
}

// AdminCreateOrder materializes an operator-entered order. Operators get the
// specific error back, unlike the public endpoints.
func AdminCreateOrder(composer OrderComposer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if composer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order composer unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		raw := make([]cart.RawLine, 0, len(req.Items))
		for _, item := range req.Items {
			raw = append(raw, cart.RawLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := composer.Compose(ctx, orders.ManualOrderInput{
			Lines:                 raw,
			CustomerEmail:         req.CustomerEmail,
			CustomerPhone:         req.CustomerPhone,
			ShippingName:          req.ShippingName,
			ShippingLine1:         req.ShippingLine1,
			ShippingLine2:         req.ShippingLine2,
			ShippingCity:          req.ShippingCity,
			ShippingState:         req.ShippingState,
			ShippingPostalCode:    req.ShippingPostalCode,
			ShippingCountry:       req.ShippingCountry,
			ShippingCentsOverride: req.ShippingCentsOverride,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

func toOrderResponse(order *models.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		lines = append(lines, orderLineResponse{
			Description:   item.Description,
			Quantity:      item.Quantity,
			SubtotalCents: item.SubtotalCents,
			TotalCents:    item.TotalCents,
			Currency:      item.Currency,
		})
	}
	return orderResponse{
		ID:               order.ID.String(),
		IdempotencyKey:   order.StripeSessionID,
		Status:           order.Status,
		SKU:              order.SKU,
		Quantity:         order.Quantity,
		LineItems:        lines,
		CustomerEmail:    order.CustomerEmail,
		AmountTotalCents: order.AmountTotalCents,
		Currency:         order.Currency,
		CreatedAt:        order.CreatedAt,
	}
}
