package model

import "time"

// Item is one sellable catalog listing with a finite quantity.
// RemainingQty only ever changes through the reservation engine.
type Item struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	UnitPrice    Money      `json:"unit_price"`
	InitialQty   int        `json:"initial_qty"`
	RemainingQty int        `json:"remaining_qty"`
	PhotoMime    string     `json:"photo_mime,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DelistedAt   *time.Time `json:"delisted_at,omitempty"`
}

// SoldOut reports whether every unit is reserved.
func (i *Item) SoldOut() bool {
	return i.RemainingQty <= 0
}
