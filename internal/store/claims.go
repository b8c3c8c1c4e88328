package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/claimdesk/claimdesk/internal/model"
)

// QuantityAll is the quantity spec meaning "everything still available".
const QuantityAll = "all"

// ClaimResult is the outcome of a successful reservation.
type ClaimResult struct {
	Reserved  int `json:"reserved"`
	Remaining int `json:"remaining"`
}

// CancelResult is the outcome of a successful cancellation or revocation.
type CancelResult struct {
	Released  int `json:"released"`
	Remaining int `json:"remaining"`
}

// RevokeResult is the outcome of an admin revocation, including what
// reconciliation did to the buyer's order, if any.
type RevokeResult struct {
	CancelResult
	OrderAdjusted  bool   `json:"order_adjusted"`
	OrderCancelled bool   `json:"order_cancelled"`
	InvoiceNo      string `json:"invoice_no,omitempty"`
}

// ClaimUnits reserves units of an item for an actor in a single transaction.
// qtySpec is "" (one unit), a positive integer, or "all". The item row is
// write-locked for the whole transaction, so concurrent claims on the same
// item serialize and stock can never go negative.
func ClaimUnits(ctx context.Context, db *sql.DB, cfg Config, itemID, actorID int64, displayName, qtySpec string) (*ClaimResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	remaining, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	// Cancellation still works on a delisted item, claiming does not.
	var delisted sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT delisted_at FROM items WHERE id = ?`, itemID,
	).Scan(&delisted)
	if err != nil {
		return nil, fmt.Errorf("checking item listing: %w", err)
	}
	if delisted.Valid {
		return nil, ErrNotTracked
	}

	qty, err := resolveQuantity(qtySpec, remaining)
	if err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, ErrNothingAvailable
	}
	if qty > remaining {
		return nil, &InsufficientStockError{Requested: qty, Remaining: remaining}
	}

	var held int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claims
		 WHERE item_id = ? AND actor_id = ? AND status = 'active'`,
		itemID, actorID,
	).Scan(&held)
	if err != nil {
		return nil, fmt.Errorf("checking existing claims: %w", err)
	}
	if held > 0 && !cfg.AllowRepeatClaims {
		return nil, &DuplicateClaimError{Held: held}
	}

	// Sequence numbers continue from the item's current active claim count.
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claims WHERE item_id = ? AND status = 'active'`,
		itemID,
	).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("counting active claims: %w", err)
	}

	// Revive the actor's cancelled rows before inserting new ones, so the
	// claim table stays bounded by units ever claimed and a retried claim
	// lands on the same rows.
	revivable, err := cancelledClaimIDs(ctx, tx, itemID, actorID, qty)
	if err != nil {
		return nil, err
	}

	for i := range qty {
		seq := active + i + 1
		if i < len(revivable) {
			_, err = tx.ExecContext(ctx,
				`UPDATE claims
				 SET status = 'active', display_name = ?, seq = ?, created_at = CURRENT_TIMESTAMP
				 WHERE id = ?`,
				displayName, seq, revivable[i],
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO claims (item_id, actor_id, display_name, seq)
				 VALUES (?, ?, ?, ?)`,
				itemID, actorID, displayName, seq,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("recording claim: %w", err)
		}
	}

	if err := adjustRemaining(ctx, tx, itemID, -qty); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	return &ClaimResult{Reserved: qty, Remaining: remaining - qty}, nil
}

// CancelClaims releases all of an actor's active claims on an item. Buyers
// may only cancel within the configured window of their earliest claim;
// administrators bypass the window.
func CancelClaims(ctx context.Context, db *sql.DB, cfg Config, itemID, actorID int64, isAdmin bool) (*CancelResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := cancelClaimsTx(ctx, tx, cfg, itemID, actorID, isAdmin)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation: %w", err)
	}
	return result, nil
}

// AdminRevoke cancels a buyer's claims on an item and reconciles the buyer's
// most recent open order in the same transaction. A missing order or line is
// not an error: revocation must succeed even when the buyer never checked out.
func AdminRevoke(ctx context.Context, db *sql.DB, cfg Config, itemID, actorID int64) (*RevokeResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cancelled, err := cancelClaimsTx(ctx, tx, cfg, itemID, actorID, true)
	if err != nil {
		return nil, err
	}

	recon, err := reconcileOrder(ctx, tx, actorID, itemID, cancelled.Released)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing revocation: %w", err)
	}

	return &RevokeResult{
		CancelResult:   *cancelled,
		OrderAdjusted:  recon.Adjusted,
		OrderCancelled: recon.OrderCancelled,
		InvoiceNo:      recon.InvoiceNo,
	}, nil
}

// cancelClaimsTx is the shared cancel protocol, run inside the caller's
// transaction.
func cancelClaimsTx(ctx context.Context, tx *sql.Tx, cfg Config, itemID, actorID int64, isAdmin bool) (*CancelResult, error) {
	remaining, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT created_at FROM claims
		 WHERE item_id = ? AND actor_id = ? AND status = 'active'`,
		itemID, actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading active claims: %w", err)
	}
	var earliest time.Time
	count := 0
	for rows.Next() {
		var createdAt time.Time
		if err := rows.Scan(&createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		if count == 0 || createdAt.Before(earliest) {
			earliest = createdAt
		}
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading active claims: %w", err)
	}

	if count == 0 {
		return nil, ErrNoActiveClaims
	}

	if !isAdmin {
		elapsed := time.Now().UTC().Sub(earliest)
		if elapsed > cfg.CancelWindow {
			return nil, &CancelWindowError{Window: cfg.CancelWindow, Elapsed: elapsed}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET status = 'cancelled'
		 WHERE item_id = ? AND actor_id = ? AND status = 'active'`,
		itemID, actorID,
	); err != nil {
		return nil, fmt.Errorf("cancelling claims: %w", err)
	}

	if err := adjustRemaining(ctx, tx, itemID, count); err != nil {
		return nil, err
	}

	return &CancelResult{Released: count, Remaining: remaining + count}, nil
}

// SummarizeClaims returns an actor's active claims grouped by item, ordered
// by earliest claim. This is the read the checkout snapshot is built from.
func SummarizeClaims(ctx context.Context, db *sql.DB, actorID int64) ([]model.ClaimSummaryLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.item_id, i.name, i.unit_price, COUNT(*) AS qty
		 FROM claims c
		 JOIN items i ON i.id = c.item_id
		 WHERE c.actor_id = ? AND c.status = 'active'
		 GROUP BY c.item_id, i.name, i.unit_price
		 ORDER BY MIN(c.created_at), c.item_id`,
		actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing claims: %w", err)
	}
	defer rows.Close()

	var lines []model.ClaimSummaryLine
	for rows.Next() {
		var line model.ClaimSummaryLine
		var price string
		if err := rows.Scan(&line.ItemID, &line.Name, &price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scanning claim summary: %w", err)
		}
		line.Price, err = model.MoneyFromStored(price)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ActiveClaimants lists buyers holding active claims, one row per
// (item, actor), ordered by earliest claim. Feeds the admin revocation list.
func ActiveClaimants(ctx context.Context, db *sql.DB) ([]model.Claimant, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT item_id, actor_id, COALESCE(display_name, ''), COUNT(*) AS qty, MIN(created_at) AS earliest
		 FROM claims
		 WHERE status = 'active'
		 GROUP BY item_id, actor_id
		 ORDER BY earliest`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing claimants: %w", err)
	}
	defer rows.Close()

	var claimants []model.Claimant
	for rows.Next() {
		var c model.Claimant
		// MIN(created_at) comes back as bare "YYYY-MM-DD HH:MM:SS" text,
		// the aggregate drops the column's DATETIME declared type.
		var earliest string
		if err := rows.Scan(&c.ItemID, &c.ActorID, &c.DisplayName, &c.Quantity, &earliest); err != nil {
			return nil, fmt.Errorf("scanning claimant: %w", err)
		}
		c.Earliest, err = time.Parse(time.DateTime, earliest)
		if err != nil {
			return nil, fmt.Errorf("parsing claimant timestamp: %w", err)
		}
		claimants = append(claimants, c)
	}
	return claimants, rows.Err()
}

// ReleaseStaleClaims cancels all of an actor's claims older than the staleness
// horizon, using the admin cancel path per item. Called at session start.
// Returns the number of units released.
func ReleaseStaleClaims(ctx context.Context, db *sql.DB, cfg Config, actorID int64) (int, error) {
	// created_at is written by CURRENT_TIMESTAMP, so compare in the same
	// "YYYY-MM-DD HH:MM:SS" text form.
	cutoff := time.Now().UTC().Add(-cfg.StaleAfter).Format(time.DateTime)

	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT item_id FROM claims
		 WHERE actor_id = ? AND status = 'active' AND created_at < ?`,
		actorID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("finding stale claims: %w", err)
	}
	var itemIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning stale claim item: %w", err)
		}
		itemIDs = append(itemIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("finding stale claims: %w", err)
	}

	released := 0
	for _, itemID := range itemIDs {
		result, err := CancelClaims(ctx, db, cfg, itemID, actorID, true)
		if errors.Is(err, ErrNoActiveClaims) {
			// Cancelled between the scan and now.
			continue
		}
		if err != nil {
			return released, fmt.Errorf("releasing stale claims on item %d: %w", itemID, err)
		}
		released += result.Released
	}
	return released, nil
}

// lockItem takes the write lock on the item row as the transaction's first
// statement and returns the current remaining quantity. The no-op update
// forces the transaction into write mode immediately, so two concurrent
// claim transactions on any item serialize instead of both reading the same
// snapshot.
func lockItem(ctx context.Context, tx *sql.Tx, itemID int64) (int, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE items SET remaining_qty = remaining_qty WHERE id = ?`, itemID,
	)
	if err != nil {
		return 0, fmt.Errorf("locking item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, ErrNotTracked
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		`SELECT remaining_qty FROM items WHERE id = ?`, itemID,
	).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("reading remaining quantity: %w", err)
	}
	return remaining, nil
}

// resolveQuantity turns a quantity spec into a concrete unit count. An empty
// spec means one unit; "all" means whatever remains.
func resolveQuantity(spec string, remaining int) (int, error) {
	switch spec {
	case "":
		return 1, nil
	case QuantityAll:
		return remaining, nil
	}
	qty, err := strconv.Atoi(spec)
	if err != nil || qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return qty, nil
}

// cancelledClaimIDs returns up to limit of the actor's most recently
// cancelled claim rows on an item, newest first.
func cancelledClaimIDs(ctx context.Context, tx *sql.Tx, itemID, actorID int64, limit int) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM claims
		 WHERE item_id = ? AND actor_id = ? AND status = 'cancelled'
		 ORDER BY id DESC LIMIT ?`,
		itemID, actorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding revivable claims: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning revivable claim: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
