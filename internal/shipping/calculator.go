package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/fernwood-goods/storefront-backend/internal/cart"
	"github.com/fernwood-goods/storefront-backend/internal/products"
	"github.com/fernwood-goods/storefront-backend/pkg/db/models"
	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MissingProductPolicy decides what happens when a cart line references a
// product that does not exist or is inactive.
type MissingProductPolicy int

const (
	// MissingFatal aborts the quote; checkout and fulfillment use this.
	MissingFatal MissingProductPolicy = iota
	// MissingSkip drops the line and prices the rest; public quoting uses this.
	MissingSkip
)

const (
	// defaultItemWeightGrams is charged for a shippable line with no weight
	// data at all. The same figure doubles as the zero-weight floor on the
	// fallback rate path.
	defaultItemWeightGrams = 250

	fallbackSmallMaxGrams  = 250
	fallbackMediumMaxGrams = 750

	fallbackSmallRateCents  = 495
	fallbackMediumRateCents = 895
	fallbackLargeRateCents  = 1495

	fallbackFreeShippingThresholdCents = 7500

	fallbackZoneName = "default"
)

var ouncesToGrams = decimal.NewFromFloat(28.3495)

// PricedLine pairs a normalized cart line with its resolved product.
type PricedLine struct {
	ProductID     uuid.UUID
	Quantity      int
	SubtotalCents int
	Product       *models.Product
}

// Quote is the priced view of a cart for one destination.
type Quote struct {
	SubtotalCents              int
	ShippingCents              int
	TotalWeightGrams           int
	FreeShippingThresholdCents *int
	ZoneName                   string
	Lines                      []PricedLine
}

// Calculator prices carts and selects the weight-tier shipping rate. The same
// calculator backs public quoting, webhook fulfillment, and manual orders so
// the three paths can never disagree.
type Calculator struct {
	products    products.Repository
	zones       ZoneRepository
	homeCountry string
}

// NewCalculator builds a calculator with the given repositories.
func NewCalculator(productRepo products.Repository, zoneRepo ZoneRepository, homeCountry string) (*Calculator, error) {
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if zoneRepo == nil {
		return nil, fmt.Errorf("zone repository required")
	}
	if strings.TrimSpace(homeCountry) == "" {
		homeCountry = "US"
	}
	return &Calculator{
		products:    productRepo,
		zones:       zoneRepo,
		homeCountry: strings.ToUpper(strings.TrimSpace(homeCountry)),
	}, nil
}

// WithTx rebinds the calculator's repositories to the given transaction.
func (c *Calculator) WithTx(tx *gorm.DB) *Calculator {
	if tx == nil {
		return c
	}
	return &Calculator{
		products:    c.products.WithTx(tx),
		zones:       c.zones.WithTx(tx),
		homeCountry: c.homeCountry,
	}
}

// Quote prices the given normalized lines for the destination country.
func (c *Calculator) Quote(ctx context.Context, lines []cart.Line, country string, policy MissingProductPolicy) (*Quote, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = c.homeCountry
	}

	priced, err := c.priceLines(ctx, lines, policy)
	if err != nil {
		return nil, err
	}

	subtotal := 0
	weight := decimal.Zero
	for _, line := range priced {
		subtotal += line.SubtotalCents
		if line.Product.RequiresShipping {
			weight = weight.Add(unitWeightGrams(line.Product).Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}
	weightGrams := int(weight.Round(0).IntPart())

	quote := &Quote{
		SubtotalCents:    subtotal,
		TotalWeightGrams: weightGrams,
		Lines:            priced,
	}

	zone, err := c.zones.FindForCountry(ctx, country)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping zone")
	}

	if zone != nil && len(zone.Tiers) > 0 {
		quote.ZoneName = zone.Name
		quote.FreeShippingThresholdCents = zone.FreeShippingThresholdCents
		quote.ShippingCents = tierRate(zone.Tiers, weightGrams)
	} else {
		quote.ZoneName = fallbackZoneName
		threshold := fallbackFreeShippingThresholdCents
		quote.FreeShippingThresholdCents = &threshold
		quote.ShippingCents = fallbackRate(weightGrams)
	}

	if quote.FreeShippingThresholdCents != nil && subtotal >= *quote.FreeShippingThresholdCents {
		quote.ShippingCents = 0
	}

	return quote, nil
}

func (c *Calculator) priceLines(ctx context.Context, lines []cart.Line, policy MissingProductPolicy) ([]PricedLine, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	wanted := make(map[uuid.UUID]cart.Line, len(lines))
	for _, line := range lines {
		id, err := uuid.Parse(line.ProductID)
		if err != nil {
			if policy == MissingSkip {
				continue
			}
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		ids = append(ids, id)
		wanted[id] = line
	}

	found, err := c.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]*models.Product, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	priced := make([]PricedLine, 0, len(ids))
	for _, id := range ids {
		product, ok := byID[id]
		if !ok {
			if policy == MissingSkip {
				continue
			}
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id.String()})
		}
		line := wanted[id]
		priced = append(priced, PricedLine{
			ProductID:     id,
			Quantity:      line.Quantity,
			SubtotalCents: line.Quantity * product.PriceCents,
			Product:       product,
		})
	}
	return priced, nil
}

// unitWeightGrams resolves a product's shipping weight. Precedence: explicit
// grams, ounces, the legacy grams column, then volume at 1 ml ~= 1 g. A
// shippable product with no data at all weighs the flat default.
func unitWeightGrams(p *models.Product) decimal.Decimal {
	switch {
	case p.WeightGrams != nil && *p.WeightGrams > 0:
		return decimal.NewFromFloat(*p.WeightGrams)
	case p.WeightOunces != nil && *p.WeightOunces > 0:
		return decimal.NewFromFloat(*p.WeightOunces).Mul(ouncesToGrams)
	case p.LegacyWeightG != nil && *p.LegacyWeightG > 0:
		return decimal.NewFromFloat(*p.LegacyWeightG)
	case p.VolumeML != nil && *p.VolumeML > 0:
		return decimal.NewFromFloat(*p.VolumeML)
	default:
		return decimal.NewFromInt(defaultItemWeightGrams)
	}
}

// tierRate brackets the weight into the zone's schedule. Weight beyond every
// tier clamps to the heaviest tier's rate rather than rejecting the order.
func tierRate(tiers []models.WeightTier, weightGrams int) int {
	top := tiers[0]
	for _, tier := range tiers {
		if weightGrams >= tier.MinWeightGrams && weightGrams <= tier.MaxWeightGrams {
			return tier.RateCents
		}
		if tier.MaxWeightGrams > top.MaxWeightGrams {
			top = tier
		}
	}
	return top.RateCents
}

// fallbackRate prices destinations no zone claims. A weightless cart is
// charged as the default item weight here; zone-matched carts are not.
func fallbackRate(weightGrams int) int {
	if weightGrams == 0 {
		weightGrams = defaultItemWeightGrams
	}
	switch {
	case weightGrams <= fallbackSmallMaxGrams:
		return fallbackSmallRateCents
	case weightGrams <= fallbackMediumMaxGrams:
		return fallbackMediumRateCents
	default:
		return fallbackLargeRateCents
	}
}
