package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fernwood-goods/storefront-backend/pkg/db/types"
)

// ShippingZone maps a set of ISO country codes to an ordered weight-tier
// rate schedule. Countries are stored uppercased.
type ShippingZone struct {
	ID                         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name                       string           `gorm:"column:name;not null"`
	Countries                  types.StringList `gorm:"column:countries;type:jsonb;not null"`
	Enabled                    bool             `gorm:"column:enabled;not null;default:true"`
	FreeShippingThresholdCents *int             `gorm:"column:free_shipping_threshold_cents"`
	Tiers                      []WeightTier     `gorm:"foreignKey:ZoneID;constraint:OnDelete:CASCADE"`
	CreatedAt                  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (z *ShippingZone) BeforeCreate(tx *gorm.DB) error {
	if z.ID == uuid.Nil {
		z.ID = uuid.New()
	}
	return nil
}
