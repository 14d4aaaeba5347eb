package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fernwood-goods/storefront-backend/internal/products"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	dbtypes "github.com/fernwood-goods/storefront-backend/pkg/db/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newQuoteHandler(t *testing.T) (http.HandlerFunc, *gorm.DB) {
	t.Helper()
	dsn := "file:quote_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.ShippingZone{}, &models.WeightTier{}))

	calc, err := shipping.NewCalculator(products.NewRepository(db), shipping.NewZoneRepository(db), "US")
	require.NoError(t, err)
	return ShippingQuote(calc, nil), db
}

func postQuote(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/quote", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestShippingQuoteSkipsUnknownProducts(t *testing.T) {
	t.Parallel()

	handler, db := newQuoteHandler(t)
	weight := 100.0
	product := models.Product{
		ID: uuid.New(), SKU: "FG-01", Title: "cedar candle",
		PriceCents: 1800, Stock: 10, IsActive: true,
		RequiresShipping: true, WeightGrams: &weight,
	}
	require.NoError(t, db.Create(&product).Error)
	zone := models.ShippingZone{
		ID: uuid.New(), Name: "US", Countries: dbtypes.StringList{"US"}, Enabled: true,
		Tiers: []models.WeightTier{{ID: uuid.New(), MinWeightGrams: 0, MaxWeightGrams: 250, RateCents: 450}},
	}
	require.NoError(t, db.Create(&zone).Error)

	body := `{"items":[{"productId":"` + product.ID.String() + `","quantity":1},` +
		`{"productId":"` + uuid.NewString() + `","quantity":2}],"country":"US"}`
	rec := postQuote(t, handler, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data quoteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 1800, envelope.Data.SubtotalCents)
	assert.Equal(t, 100, envelope.Data.TotalWeightGrams)
	assert.Equal(t, 450, envelope.Data.ShippingCents)
	assert.Equal(t, "US", envelope.Data.ZoneName)
}

func TestShippingQuoteRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	handler, _ := newQuoteHandler(t)

	rec := postQuote(t, handler, `{"items":[{"productId":"  ","quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CART")
}

func TestShippingQuoteRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	handler, _ := newQuoteHandler(t)

	rec := postQuote(t, handler, `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postQuote(t, handler, `{"items":[],"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
