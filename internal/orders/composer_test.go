package orders

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/products"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	dbtypes "github.com/fernwood-goods/storefront-backend/pkg/db/types"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Order{}, &models.ShippingZone{}, &models.WeightTier{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newComposer(t *testing.T, db *gorm.DB) *Composer {
	t.Helper()
	calc, err := shipping.NewCalculator(products.NewRepository(db), shipping.NewZoneRepository(db), "US")
	require.NoError(t, err)
	composer, err := NewComposer(ComposerParams{
		OrderRepo:         NewRepository(db),
		Calculator:        calc,
		TransactionRunner: gormTxRunner{db: db},
	})
	require.NoError(t, err)
	return composer
}

func seedProduct(t *testing.T, db *gorm.DB, p models.Product) *models.Product {
	t.Helper()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.SKU == "" {
		p.SKU = "SKU-" + p.ID.String()[:8]
	}
	if p.Title == "" {
		p.Title = "fern planter"
	}
	p.IsActive = true
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func seedUSZone(t *testing.T, db *gorm.DB) {
	t.Helper()
	zone := models.ShippingZone{
		ID:        uuid.New(),
		Name:      "US",
		Countries: dbtypes.StringList{"US"},
		Enabled:   true,
		Tiers: []models.WeightTier{
			{ID: uuid.New(), MinWeightGrams: 0, MaxWeightGrams: 1000, RateCents: 600},
		},
	}
	require.NoError(t, db.Create(&zone).Error)
}

func loadStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", id).Error)
	return product.Stock
}

func str(s string) *string { return &s }

func shippableInput(product *models.Product, qty int) ManualOrderInput {
	return ManualOrderInput{
		Lines:              []cart.RawLine{{ProductID: product.ID.String(), Quantity: qty}},
		CustomerEmail:      "ops@example.com",
		ShippingName:       str("Pat Buyer"),
		ShippingLine1:      str("1 Fern St"),
		ShippingCity:       str("Portland"),
		ShippingState:      str("OR"),
		ShippingPostalCode: str("97201"),
		ShippingCountry:    str("US"),
	}
}

func TestComposeCreatesOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	weight := 100.0
	product := seedProduct(t, db, models.Product{PriceCents: 1200, Stock: 5, RequiresShipping: true, WeightGrams: &weight})

	order, err := newComposer(t, db).Compose(context.Background(), shippableInput(product, 2))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^manual_[0-9a-f]{24}$`), order.StripeSessionID)
	assert.Equal(t, "PAID", order.Status)
	assert.Equal(t, product.ID, order.ProductID)
	assert.Equal(t, product.SKU, order.SKU)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, 2*1200+600, order.AmountTotalCents)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, product.Title, order.LineItems[0].Description)
	assert.Equal(t, 2400, order.LineItems[0].SubtotalCents)
	assert.Equal(t, 3, loadStock(t, db, product.ID))

	stored, err := NewRepository(db).FindByStripeSessionID(context.Background(), order.StripeSessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.ID, stored.ID)
}

func TestComposeEveryCallIsANewOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	product := seedProduct(t, db, models.Product{PriceCents: 500, Stock: 10, RequiresShipping: false})

	composer := newComposer(t, db)
	input := ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: product.ID.String(), Quantity: 1}},
		CustomerEmail: "ops@example.com",
	}

	first, err := composer.Compose(context.Background(), input)
	require.NoError(t, err)
	second, err := composer.Compose(context.Background(), input)
	require.NoError(t, err)

	assert.NotEqual(t, first.StripeSessionID, second.StripeSessionID)
	assert.Equal(t, 8, loadStock(t, db, product.ID))
}

func TestComposeRequiresEmail(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := seedProduct(t, db, models.Product{PriceCents: 500, Stock: 10})

	_, err := newComposer(t, db).Compose(context.Background(), ManualOrderInput{
		Lines: []cart.RawLine{{ProductID: product.ID.String(), Quantity: 1}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestComposeRequiresAddressOnlyForShippableLines(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	weight := 100.0
	physical := seedProduct(t, db, models.Product{PriceCents: 900, Stock: 5, RequiresShipping: true, WeightGrams: &weight})
	digital := seedProduct(t, db, models.Product{PriceCents: 400, Stock: 5, RequiresShipping: false})

	composer := newComposer(t, db)

	_, err := composer.Compose(context.Background(), ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: physical.ID.String(), Quantity: 1}},
		CustomerEmail: "ops@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, 5, loadStock(t, db, physical.ID))

	order, err := composer.Compose(context.Background(), ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: digital.ID.String(), Quantity: 1}},
		CustomerEmail: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, order.ShippingLine1)
}

func TestComposeAdminQuantityRange(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	product := seedProduct(t, db, models.Product{PriceCents: 10, Stock: 100, RequiresShipping: false})

	// Quantities past the customer ceiling are legitimate for operators.
	order, err := newComposer(t, db).Compose(context.Background(), ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: product.ID.String(), Quantity: 50}},
		CustomerEmail: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 50, order.Quantity)
	assert.Equal(t, 50, loadStock(t, db, product.ID))
}

func TestComposeShippingOverride(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	weight := 100.0
	product := seedProduct(t, db, models.Product{PriceCents: 1000, Stock: 5, RequiresShipping: true, WeightGrams: &weight})

	override := 250
	input := shippableInput(product, 1)
	input.ShippingCentsOverride = &override

	order, err := newComposer(t, db).Compose(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1000+250, order.AmountTotalCents)
}

func TestComposeFreeShippingBeatsOverride(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	zone := models.ShippingZone{
		ID:                         uuid.New(),
		Name:                       "US",
		Countries:                  dbtypes.StringList{"US"},
		Enabled:                    true,
		FreeShippingThresholdCents: intPtr(2000),
		Tiers: []models.WeightTier{
			{ID: uuid.New(), MinWeightGrams: 0, MaxWeightGrams: 1000, RateCents: 600},
		},
	}
	require.NoError(t, db.Create(&zone).Error)
	weight := 100.0
	product := seedProduct(t, db, models.Product{PriceCents: 1000, Stock: 5, RequiresShipping: true, WeightGrams: &weight})

	override := 250
	input := shippableInput(product, 2)
	input.ShippingCentsOverride = &override

	order, err := newComposer(t, db).Compose(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2000, order.AmountTotalCents)
}

func TestComposeInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	product := seedProduct(t, db, models.Product{PriceCents: 500, Stock: 1, RequiresShipping: false})

	_, err := newComposer(t, db).Compose(context.Background(), ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: product.ID.String(), Quantity: 2}},
		CustomerEmail: "ops@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 1, loadStock(t, db, product.ID))
}

func TestComposeConcurrentLastUnit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedUSZone(t, db)
	product := seedProduct(t, db, models.Product{PriceCents: 500, Stock: 1, RequiresShipping: false})
	composer := newComposer(t, db)

	input := ManualOrderInput{
		Lines:         []cart.RawLine{{ProductID: product.ID.String(), Quantity: 1}},
		CustomerEmail: "ops@example.com",
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := composer.Compose(context.Background(), input)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, stockFailures := 0, 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			stockFailures++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 0, loadStock(t, db, product.ID))
}

func intPtr(v int) *int { return &v }
