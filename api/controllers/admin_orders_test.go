package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fernwood-goods/storefront-backend/internal/orders"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	dbtypes "github.com/fernwood-goods/storefront-backend/pkg/db/types"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComposer struct {
	input orders.ManualOrderInput
	order *models.Order
	err   error
}

func (f *fakeComposer) Compose(ctx context.Context, input orders.ManualOrderInput) (*models.Order, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func postAdminOrder(t *testing.T, composer OrderComposer, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := AdminCreateOrder(composer, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminCreateOrderReturnsSnapshot(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	email := "buyer@example.com"
	composer := &fakeComposer{
		order: &models.Order{
			ID:              uuid.New(),
			StripeSessionID: "manual_0123456789abcdef01234567",
			Status:          "PAID",
			ProductID:       productID,
			SKU:             "FG-01",
			Quantity:        2,
			LineItems: dbtypes.OrderLineSnapshots{
				{Description: "cedar candle", Quantity: 2, SubtotalCents: 3600, TotalCents: 3600, Currency: "USD"},
			},
			CustomerEmail:    &email,
			AmountTotalCents: 4200,
			Currency:         "USD",
		},
	}

	body := `{"items":[{"productId":"` + productID.String() + `","quantity":2}],"customerEmail":"buyer@example.com"}`
	rec := postAdminOrder(t, composer, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "manual_0123456789abcdef01234567", envelope.Data.IdempotencyKey)
	assert.Equal(t, "PAID", envelope.Data.Status)
	assert.Equal(t, 4200, envelope.Data.AmountTotalCents)
	require.Len(t, envelope.Data.LineItems, 1)
	assert.Equal(t, "cedar candle", envelope.Data.LineItems[0].Description)

	require.Len(t, composer.input.Lines, 1)
	assert.Equal(t, productID.String(), composer.input.Lines[0].ProductID)
	assert.Equal(t, "buyer@example.com", composer.input.CustomerEmail)
}

func TestAdminCreateOrderValidatesBody(t *testing.T) {
	t.Parallel()

	composer := &fakeComposer{}

	rec := postAdminOrder(t, composer, `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postAdminOrder(t, composer, `{"items":[{"productId":"x","quantity":1}],"customerEmail":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateOrderSurfacesSpecificErrors(t *testing.T) {
	t.Parallel()

	composer := &fakeComposer{
		err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"product_id": uuid.NewString(), "requested": 2}),
	}

	body := `{"items":[{"productId":"` + uuid.NewString() + `","quantity":2}],"customerEmail":"ops@example.com"}`
	rec := postAdminOrder(t, composer, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_STOCK")
	assert.Contains(t, rec.Body.String(), "product_id")
}
