package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claimdesk/claimdesk/internal/model"
)

// CatalogEntry is one listing from a catalog upload, prices still in the
// seller's free-form notation.
type CatalogEntry struct {
	Name     string
	Price    string
	Quantity int
}

// ReplaceCatalog delists the current catalog and ingests a new one. Prices
// are parsed here, once; nothing downstream re-parses display strings.
// Existing items are delisted rather than deleted because claim rows
// reference them.
func ReplaceCatalog(ctx context.Context, db *sql.DB, entries []CatalogEntry) ([]model.Item, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog upload is empty")
	}

	// Validate the whole upload before touching the database.
	prices := make([]model.Money, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog row %d: name required", i+1)
		}
		if e.Quantity < 0 {
			return nil, fmt.Errorf("catalog row %d: negative availability", i+1)
		}
		price, err := model.ParsePrice(e.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog row %d: %w", i+1, err)
		}
		prices[i] = price
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET delisted_at = CURRENT_TIMESTAMP WHERE delisted_at IS NULL`,
	); err != nil {
		return nil, fmt.Errorf("delisting previous catalog: %w", err)
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO items (name, unit_price, initial_qty, remaining_qty)
			 VALUES (?, ?, ?, ?)`,
			e.Name, prices[i].String(), e.Quantity, e.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting item %q: %w", e.Name, err)
		}
		ids[i], err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting id for item %q: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing catalog: %w", err)
	}

	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		item, err := GetItem(ctx, db, id)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// GetItem returns an item by ID, delisted or not. Returns nil if no such item.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	return scanItem(db.QueryRowContext(ctx,
		`SELECT id, name, unit_price, initial_qty, remaining_qty, photo_mime, created_at, delisted_at
		 FROM items WHERE id = ?`, id,
	))
}

// ListItems returns the current (non-delisted) catalog.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, unit_price, initial_qty, remaining_qty, photo_mime, created_at, delisted_at
		 FROM items WHERE delisted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SetItemPhoto stores a processed catalog photo for an item.
func SetItemPhoto(ctx context.Context, db *sql.DB, id int64, photo []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET photo = ?, photo_mime = ? WHERE id = ?`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item photo: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotTracked
	}
	return nil
}

// GetItemPhoto returns an item's photo data and MIME type.
func GetItemPhoto(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var photo []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT photo, photo_mime FROM items WHERE id = ?`, id,
	).Scan(&photo, &mime)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotTracked
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item photo: %w", err)
	}
	return photo, mime.String, nil
}

// adjustRemaining applies remaining_qty += delta inside the caller's
// transaction. The WHERE guard re-checks the inventory invariant; failing it
// under the row lock means the engine is broken, so the caller must abort.
func adjustRemaining(ctx context.Context, tx *sql.Tx, itemID int64, delta int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE items
		 SET remaining_qty = remaining_qty + ?
		 WHERE id = ?
		   AND remaining_qty + ? >= 0
		   AND remaining_qty + ? <= initial_qty`,
		delta, itemID, delta, delta,
	)
	if err != nil {
		return fmt.Errorf("adjusting remaining quantity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking adjustment: %w", err)
	}
	if n == 0 {
		return &InvariantViolationError{ItemID: itemID, Delta: delta}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var price string
	var mime sql.NullString
	err := row.Scan(&item.ID, &item.Name, &price, &item.InitialQty, &item.RemainingQty,
		&mime, &item.CreatedAt, &item.DelistedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	item.UnitPrice, err = model.MoneyFromStored(price)
	if err != nil {
		return nil, err
	}
	item.PhotoMime = mime.String
	return item, nil
}
