package model

import "time"

// Order is a snapshot of a buyer's active claims taken at checkout
// confirmation. After creation it is independent of the claim ledger:
// only explicit reconciliation mutates its lines and totals.
type Order struct {
	ID               int64     `json:"id"`
	InvoiceNo        string    `json:"invoice_no"`
	BuyerID          int64     `json:"buyer_id"`
	BuyerName        string    `json:"buyer_name,omitempty"`
	DeliveryMethod   string    `json:"delivery_method"`
	CardsSubtotal    Money     `json:"cards_subtotal"`
	DeliveryFee      Money     `json:"delivery_fee"`
	Total            Money     `json:"total"`
	Status           string    `json:"status"`
	PaymentProofRef  string    `json:"payment_proof_ref,omitempty"`
	PaymentProofKind string    `json:"payment_proof_kind,omitempty"`
	TrackingNumber   string    `json:"tracking_number,omitempty"`
	ShippingProofRef string    `json:"shipping_proof_ref,omitempty"`
	CreatedAt        time.Time `json:"created_at"`

	// Populated by order reads that join lines.
	Lines []OrderLine `json:"lines,omitempty"`
}

// OrderLine is one item's quantity and price as copied at snapshot time.
type OrderLine struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	UnitPrice Money  `json:"unit_price"`
	Qty       int    `json:"qty"`
}

// Order statuses.
const (
	OrderStatusAwaitingPayment = "awaiting_payment"
	OrderStatusVerifying       = "verifying"
	OrderStatusAwaitingAddress = "awaiting_address"
	OrderStatusPackingPending  = "packing_pending"
	OrderStatusPacked          = "packed"
	OrderStatusShipped         = "shipped"
	OrderStatusCancelled       = "cancelled"
)

// Delivery methods.
const (
	DeliveryTracked = "tracked"
	DeliverySelf    = "self"
)

// orderTransitions is the allowed status graph. Self-collection orders skip
// the address step (verifying goes straight to packing_pending).
var orderTransitions = map[string][]string{
	OrderStatusAwaitingPayment: {OrderStatusVerifying, OrderStatusCancelled},
	OrderStatusVerifying:       {OrderStatusAwaitingAddress, OrderStatusPackingPending, OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusAwaitingAddress: {OrderStatusPackingPending, OrderStatusCancelled},
	OrderStatusPackingPending:  {OrderStatusPacked, OrderStatusCancelled},
	OrderStatusPacked:          {OrderStatusShipped, OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
// Terminal statuses (shipped, cancelled) have no outgoing transitions.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a status is terminal. Reconciliation only
// touches the buyer's most recent non-terminal order.
func TerminalStatus(status string) bool {
	return status == OrderStatusShipped || status == OrderStatusCancelled
}

// Address is the parsed shipping address block for a tracked order.
type Address struct {
	Name      string `json:"name"`
	Street    string `json:"street"`
	Unit      string `json:"unit"`
	Postal    string `json:"postal"`
	Phone     string `json:"phone"`
	Confirmed bool   `json:"confirmed"`
}
