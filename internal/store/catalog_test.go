package store

import (
	"context"
	"errors"
	"testing"

	"github.com/claimdesk/claimdesk/internal/db"
)

func TestReplaceCatalog(t *testing.T) {
	database := db.NewTestDB(t)

	items := seedItems(t, database,
		CatalogEntry{Name: "Pikachu", Price: "$4.50", Quantity: 3},
		CatalogEntry{Name: "Charizard", Price: "SGD 120.00", Quantity: 1},
	)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if got := items[0].UnitPrice.Display(); got != "4.50" {
		t.Errorf("expected currency prefix stripped to 4.50, got %s", got)
	}
	if items[1].RemainingQty != 1 || items[1].InitialQty != 1 {
		t.Errorf("quantities: %+v", items[1])
	}
}

func TestReplaceCatalogDelistsPrevious(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old := seedItems(t, database, CatalogEntry{Name: "Old Stock", Price: "1.00", Quantity: 2})
	seedItems(t, database, CatalogEntry{Name: "New Stock", Price: "2.00", Quantity: 2})

	live, err := ListItems(ctx, database)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(live) != 1 || live[0].Name != "New Stock" {
		t.Errorf("expected only the new catalog live, got %v", live)
	}

	// The old item survives as a row (claims may reference it) but cannot be
	// claimed anymore.
	_, err = ClaimUnits(ctx, database, DefaultConfig(), old[0].ID, 100, "Alice", "1")
	if !errors.Is(err, ErrNotTracked) {
		t.Errorf("expected ErrNotTracked on delisted item, got %v", err)
	}
}

func TestReplaceCatalogRejectsBadPriceAtomically(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	seedItems(t, database, CatalogEntry{Name: "Keeper", Price: "1.00", Quantity: 1})

	_, err := ReplaceCatalog(ctx, database, []CatalogEntry{
		{Name: "Fine", Price: "2.00", Quantity: 1},
		{Name: "Broken", Price: "not a price", Quantity: 1},
	})
	if err == nil {
		t.Fatal("expected error for invalid price")
	}

	// The failed upload must not have delisted the current catalog.
	live, _ := ListItems(ctx, database)
	if len(live) != 1 || live[0].Name != "Keeper" {
		t.Errorf("expected old catalog untouched, got %v", live)
	}
}

func TestReplaceCatalogRejectsNegativeValues(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := ReplaceCatalog(ctx, database, []CatalogEntry{
		{Name: "Bad", Price: "-5.00", Quantity: 1},
	}); err == nil {
		t.Error("expected error for negative price")
	}

	if _, err := ReplaceCatalog(ctx, database, []CatalogEntry{
		{Name: "", Price: "5.00", Quantity: 1},
	}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestItemPhoto(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	items := seedItems(t, database, CatalogEntry{Name: "Pikachu", Price: "4.50", Quantity: 3})

	data, mime, err := GetItemPhoto(ctx, database, items[0].ID)
	if err != nil {
		t.Fatalf("GetItemPhoto: %v", err)
	}
	if data != nil {
		t.Errorf("expected no photo yet, got %d bytes", len(data))
	}

	if err := SetItemPhoto(ctx, database, items[0].ID, []byte{0xff, 0xd8, 0xff}, "image/jpeg"); err != nil {
		t.Fatalf("SetItemPhoto: %v", err)
	}

	data, mime, err = GetItemPhoto(ctx, database, items[0].ID)
	if err != nil {
		t.Fatalf("GetItemPhoto: %v", err)
	}
	if len(data) != 3 || mime != "image/jpeg" {
		t.Errorf("expected stored photo back, got %d bytes %q", len(data), mime)
	}

	item, _ := GetItem(ctx, database, items[0].ID)
	if item.PhotoMime != "image/jpeg" {
		t.Errorf("expected photo_mime on item, got %q", item.PhotoMime)
	}
}
