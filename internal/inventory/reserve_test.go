package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestReserveDecrementsEveryLine(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productA := seedProduct(t, db, 5)
	productB := seedProduct(t, db, 2)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, []Reservation{
			{ProductID: productA, Qty: 3},
			{ProductID: productB, Qty: 2},
		})
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if got := loadStock(t, db, productA); got != 2 {
		t.Fatalf("product a stock = %d, want 2", got)
	}
	if got := loadStock(t, db, productB); got != 0 {
		t.Fatalf("product b stock = %d, want 0", got)
	}
}

func TestReserveInsufficientStockRollsBackWholeBatch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productA := seedProduct(t, db, 10)
	productB := seedProduct(t, db, 1)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, []Reservation{
			{ProductID: productA, Qty: 4},
			{ProductID: productB, Qty: 2},
		})
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["product_id"] != productB.String() {
		t.Fatalf("error should name the failing product, got %v", typed.Details())
	}

	// The first line's decrement must not survive the rollback.
	if got := loadStock(t, db, productA); got != 10 {
		t.Fatalf("product a stock = %d, want 10", got)
	}
	if got := loadStock(t, db, productB); got != 1 {
		t.Fatalf("product b stock = %d, want 1", got)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(context.Background(), tx, []Reservation{{ProductID: uuid.New(), Qty: 1}})
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := seedProduct(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(context.Background(), tx, []Reservation{{ProductID: product, Qty: 0}})
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return Reserve(context.Background(), tx, []Reservation{{Qty: 1}})
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := seedProduct(t, db, 1)

	const attempts = 8
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				return Reserve(context.Background(), tx, []Reservation{{ProductID: product, Qty: 1}})
			})
			if err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != 1 {
		t.Fatalf("exactly one reservation should win, got %d", won)
	}
	if got := loadStock(t, db, product); got != 0 {
		t.Fatalf("final stock = %d, want 0", got)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("migrate products: %v", err)
	}
	// A single connection makes concurrent transactions queue instead of
	// tripping SQLite lock errors; Postgres row locks serialize the same way.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Title:      "test product",
		PriceCents: 1000,
		Stock:      stock,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func loadStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}
