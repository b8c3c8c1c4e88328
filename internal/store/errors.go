package store

import (
	"errors"
	"fmt"
	"time"
)

// Reservation engine errors are values the calling layer can match with
// errors.Is/errors.As and render without a follow-up query: errors that
// depend on state carry that state.
var (
	// ErrNotTracked means the referenced item does not exist in the catalog.
	ErrNotTracked = errors.New("item is not tracked")

	// ErrInvalidQuantity means the quantity spec was neither "all" nor a
	// positive integer.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrNothingAvailable means the resolved quantity was zero ("all" on a
	// sold-out item).
	ErrNothingAvailable = errors.New("nothing available to claim")

	// ErrNoActiveClaims means the actor holds no active claims on the item.
	ErrNoActiveClaims = errors.New("no active claims")

	// ErrOrderNotFound means the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoClaimsToSnapshot means checkout confirmation found no active
	// claims to copy into an order.
	ErrNoClaimsToSnapshot = errors.New("no active claims to snapshot")
)

// InsufficientStockError means the requested quantity exceeds what remains.
type InsufficientStockError struct {
	Requested int
	Remaining int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d remaining, cannot claim %d", e.Remaining, e.Requested)
}

// DuplicateClaimError means the actor already holds active claims on the
// item. Policy: one active claim group per item; cancel first to change
// quantity.
type DuplicateClaimError struct {
	Held int
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("already holding %d active claim(s) on this item; cancel first to re-claim", e.Held)
}

// CancelWindowError means a buyer tried to self-cancel after the window
// closed. Administrators bypass the window.
type CancelWindowError struct {
	Window  time.Duration
	Elapsed time.Duration
}

func (e *CancelWindowError) Error() string {
	return fmt.Sprintf("cancellation window (%s) has passed (%s since claim)", e.Window, e.Elapsed.Round(time.Second))
}

// InvariantViolationError means a guarded inventory update failed despite the
// row lock. It should be unreachable; the transaction is aborted, never
// clamped.
type InvariantViolationError struct {
	ItemID int64
	Delta  int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("inventory invariant violated adjusting item %d by %d", e.ItemID, e.Delta)
}

// InvalidTransitionError means an order status change was rejected by the
// transition table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}
