package shipping

import (
	"context"
	"strings"

	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	"gorm.io/gorm"
)

// ZoneRepository resolves the shipping zone for a destination country.
type ZoneRepository interface {
	WithTx(tx *gorm.DB) ZoneRepository
	FindForCountry(ctx context.Context, country string) (*models.ShippingZone, error)
}

type zoneRepository struct {
	db *gorm.DB
}

// NewZoneRepository builds a zone repository bound to the provided DB.
func NewZoneRepository(db *gorm.DB) ZoneRepository {
	return &zoneRepository{db: db}
}

func (r *zoneRepository) WithTx(tx *gorm.DB) ZoneRepository {
	if tx == nil {
		return r
	}
	return &zoneRepository{db: tx}
}

// FindForCountry returns the first enabled zone claiming the country, or nil
// when none does. Zones are scanned oldest-first with id as a final tiebreak,
// so overlapping country lists resolve deterministically.
func (r *zoneRepository) FindForCountry(ctx context.Context, country string) (*models.ShippingZone, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, nil
	}

	var zones []models.ShippingZone
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_weight_grams ASC")
		}).
		Where("enabled = ?", true).
		Order("created_at ASC, id ASC").
		Find(&zones).Error
	if err != nil {
		return nil, err
	}

	for i := range zones {
		if zones[i].Countries.Contains(country) {
			return &zones[i], nil
		}
	}
	return nil, nil
}
