package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeightTier is a contiguous shipment-weight bracket mapped to a flat rate
// within one zone. Tiers are read ordered ascending by MinWeightGrams.
type WeightTier struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ZoneID         uuid.UUID `gorm:"column:zone_id;type:uuid;not null;index"`
	MinWeightGrams int       `gorm:"column:min_weight_grams;not null"`
	MaxWeightGrams int       `gorm:"column:max_weight_grams;not null"`
	RateCents      int       `gorm:"column:rate_cents;not null"`
}

func (t *WeightTier) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
