package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a sellable catalog unit. Stock is decremented only by the
// inventory reservation transaction; admin tooling may set it directly.
type Product struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SKU              string     `gorm:"column:sku;not null"`
	Title            string     `gorm:"column:title;not null"`
	PriceCents       int        `gorm:"column:price_cents;not null"`
	Currency         string     `gorm:"column:currency;not null;default:'USD'"`
	Stock            int        `gorm:"column:stock;not null;default:0"`
	IsActive         bool       `gorm:"column:is_active;not null;default:true"`
	RequiresShipping bool       `gorm:"column:requires_shipping;not null;default:true"`
	WeightGrams      *float64   `gorm:"column:weight_grams"`
	WeightOunces     *float64   `gorm:"column:weight_ounces"`
	LegacyWeightG    *float64   `gorm:"column:legacy_weight_g"`
	VolumeML         *float64   `gorm:"column:volume_ml"`
	WidthMM          *float64   `gorm:"column:width_mm"`
	HeightMM         *float64   `gorm:"column:height_mm"`
	DepthMM          *float64   `gorm:"column:depth_mm"`
	GroupID          *uuid.UUID `gorm:"column:group_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
