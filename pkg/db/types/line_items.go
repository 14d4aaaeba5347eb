package types

import (
	"database/sql/driver"
	"encoding/json"
)

// OrderLineSnapshot is an immutable copy of a purchased line, stored with the
// order so later catalog edits cannot alter historical order facts.
type OrderLineSnapshot struct {
	Description   string `json:"description"`
	Quantity      int    `json:"quantity"`
	SubtotalCents int    `json:"subtotal_cents"`
	TotalCents    int    `json:"total_cents"`
	Currency      string `json:"currency"`
}

// OrderLineSnapshots stores the full set of purchased lines as JSONB.
type OrderLineSnapshots []OrderLineSnapshot

// Value serializes the snapshots to JSON.
func (o OrderLineSnapshots) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]OrderLineSnapshot(o))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the snapshot list.
func (o *OrderLineSnapshots) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []OrderLineSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*o = decoded
	return nil
}
