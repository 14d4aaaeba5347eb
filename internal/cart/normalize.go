package cart

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/fernwood-goods/storefront-backend/pkg/errors"
)

// RawLine is one untrusted (product, quantity) pair as it arrives from webhook
// metadata, request bodies, or admin forms. Quantity is left untyped because
// providers send it as a JSON number, a string, or occasionally garbage.
type RawLine struct {
	ProductID string `json:"productId"`
	Quantity  any    `json:"quantity"`
}

// Line is a validated, merged cart line. At most one Line per product survives
// normalization.
type Line struct {
	ProductID string
	Quantity  int
}

// Limits bounds the per-line quantity after merging.
type Limits struct {
	Min int
	Max int
}

var (
	// CustomerLimits applies to all customer-facing carts.
	CustomerLimits = Limits{Min: 1, Max: 10}
	// AdminLimits applies to operator-entered orders. The ceiling guards
	// against overflow, not against legitimate bulk entry.
	AdminLimits = Limits{Min: 1, Max: 1000}
)

// Normalize coerces, filters, merges, and clamps raw cart lines. Entries with
// an empty product id or a non-positive/non-finite quantity are dropped;
// duplicate product ids are merged by summing quantities before clamping.
// Returns INVALID_CART when nothing usable remains.
func Normalize(raw []RawLine, limits Limits) ([]Line, error) {
	if limits.Min < 1 {
		limits.Min = 1
	}
	if limits.Max < limits.Min {
		limits.Max = limits.Min
	}

	merged := make(map[string]int, len(raw))
	order := make([]string, 0, len(raw))

	for _, entry := range raw {
		productID := strings.TrimSpace(entry.ProductID)
		if productID == "" {
			continue
		}
		qty, ok := coerceQuantity(entry.Quantity)
		if !ok || qty <= 0 {
			continue
		}
		if _, seen := merged[productID]; !seen {
			order = append(order, productID)
		}
		merged[productID] += qty
	}

	if len(merged) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCart, "no valid cart lines")
	}

	lines := make([]Line, 0, len(merged))
	for _, productID := range order {
		qty := merged[productID]
		if qty < limits.Min {
			qty = limits.Min
		}
		if qty > limits.Max {
			qty = limits.Max
		}
		lines = append(lines, Line{ProductID: productID, Quantity: qty})
	}
	return lines, nil
}

// ParseMetadata decodes the structured cart metadata a payment provider
// attaches to a checkout session. A decode failure returns nil so callers can
// fall back to the legacy flat fields.
func ParseMetadata(payload string) []RawLine {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	var raw []RawLine
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil
	}
	return raw
}

func coerceQuantity(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return coerceQuantity(parsed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return coerceQuantity(parsed)
	default:
		return 0, false
	}
}
