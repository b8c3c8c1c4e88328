package model

import "time"

// Claim is one reserved unit of an item. A buyer reserving N units holds N
// claim rows. Cancelled rows are revived on re-claim rather than re-inserted,
// so the table is bounded by units ever claimed, not by operation count.
type Claim struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"item_id"`
	ActorID     int64     `json:"actor_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Seq         int       `json:"seq"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Claim statuses.
const (
	ClaimStatusActive    = "active"
	ClaimStatusCancelled = "cancelled"
)

// ClaimSummaryLine is one item's worth of a buyer's active claims,
// as read at checkout time.
type ClaimSummaryLine struct {
	ItemID   int64  `json:"item_id"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Claimant is an aggregate row for the admin revocation list: one buyer
// holding active claims on an item.
type Claimant struct {
	ItemID      int64     `json:"item_id"`
	ActorID     int64     `json:"actor_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Quantity    int       `json:"quantity"`
	Earliest    time.Time `json:"earliest"`
}
