package checkout

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/claimdesk/claimdesk/internal/db"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *sql.DB) {
	t.Helper()
	database := db.NewTestDB(t)
	m := &Manager{DB: database, Cfg: DefaultConfig(), Store: store.DefaultConfig()}
	return m, database
}

func seedAndClaim(t *testing.T, database *sql.DB, actorID int64) []model.Item {
	t.Helper()
	ctx := context.Background()
	items, err := store.ReplaceCatalog(ctx, database, []store.CatalogEntry{
		{Name: "Umbreon VMAX", Price: "8.00", Quantity: 5},
		{Name: "Sylveon V", Price: "4.50", Quantity: 5},
	})
	if err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}
	for _, item := range items {
		if _, err := store.ClaimUnits(ctx, database, store.DefaultConfig(), item.ID, actorID, "Alice", "1"); err != nil {
			t.Fatalf("ClaimUnits: %v", err)
		}
	}
	return items
}

func TestCheckoutFullFlowTracked(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)

	start, err := m.Start(ctx, buyer)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.Stage != StateChoosingDelivery {
		t.Fatalf("expected choosing_delivery, got %s", start.Stage)
	}
	if len(start.Summary) != 2 || start.CardsSubtotal != "12.50" {
		t.Fatalf("summary: %v subtotal %s", start.Summary, start.CardsSubtotal)
	}

	stage, fee, err := m.ChooseDelivery(ctx, buyer, model.DeliveryTracked)
	if err != nil {
		t.Fatalf("ChooseDelivery: %v", err)
	}
	if stage != StateAwaitingConfirmation || fee.Display() != "3.50" {
		t.Fatalf("stage %s fee %s", stage, fee.Display())
	}

	order, err := m.Confirm(ctx, buyer, "Alice")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := order.Total.Display(); got != "16.00" {
		t.Errorf("expected total 16.00, got %s", got)
	}

	inv, err := m.SubmitPayment(ctx, buyer, "file-abc", "screenshot")
	if err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}
	if inv != order.InvoiceNo {
		t.Errorf("expected invoice %s, got %s", order.InvoiceNo, inv)
	}

	reviewed, err := m.ApplyReview(ctx, inv, true)
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}
	if reviewed.Status != model.OrderStatusAwaitingAddress {
		t.Errorf("expected awaiting_address, got %s", reviewed.Status)
	}
	if s, _ := m.Stage(ctx, buyer); s != StateAwaitingAddress {
		t.Errorf("expected session at awaiting_address, got %s", s)
	}

	addrText := "Name : Alice\nStreet Name : 1 Main St\nUnit Number : #01-01\nPostal Code : 123456\nPhone Number : 91234567"
	addr, err := m.SubmitAddress(ctx, buyer, addrText)
	if err != nil {
		t.Fatalf("SubmitAddress: %v", err)
	}
	if !addr.Confirmed {
		t.Error("expected address marked confirmed")
	}

	// Order moved to packing when the address landed.
	reread, _ := store.GetOrderByInvoice(ctx, database, inv)
	if reread.Status != model.OrderStatusPackingPending {
		t.Errorf("expected packing_pending, got %s", reread.Status)
	}

	if err := m.NotifyShipped(ctx, buyer); err != nil {
		t.Fatalf("NotifyShipped: %v", err)
	}
	if s, _ := m.Stage(ctx, buyer); s != StateDone {
		t.Errorf("expected done, got %s", s)
	}
}

func TestCheckoutSelfCollectionSkipsAddress(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)

	m.Start(ctx, buyer)
	if _, _, err := m.ChooseDelivery(ctx, buyer, model.DeliverySelf); err != nil {
		t.Fatalf("ChooseDelivery: %v", err)
	}

	order, err := m.Confirm(ctx, buyer, "Alice")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := order.Total.Display(); got != "12.50" {
		t.Errorf("self-collection adds no fee, got %s", got)
	}

	m.SubmitPayment(ctx, buyer, "file-abc", "screenshot")
	if _, err := m.ApplyReview(ctx, order.InvoiceNo, true); err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}

	if s, _ := m.Stage(ctx, buyer); s != StateAwaitingFulfillment {
		t.Errorf("expected awaiting_fulfillment, got %s", s)
	}
}

func TestCheckoutRejectionLoopsBack(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)

	m.Start(ctx, buyer)
	m.ChooseDelivery(ctx, buyer, model.DeliverySelf)
	order, _ := m.Confirm(ctx, buyer, "Alice")
	m.SubmitPayment(ctx, buyer, "file-abc", "screenshot")

	rejected, err := m.ApplyReview(ctx, order.InvoiceNo, false)
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}
	if rejected.Status != model.OrderStatusAwaitingPayment {
		t.Errorf("expected awaiting_payment, got %s", rejected.Status)
	}

	// The buyer resubmits against the same invoice.
	inv, err := m.SubmitPayment(ctx, buyer, "file-def", "screenshot")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if inv != order.InvoiceNo {
		t.Errorf("expected same invoice, got %s", inv)
	}
}

func TestCheckoutStartWithoutClaims(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()

	if _, err := store.ReplaceCatalog(ctx, database, []store.CatalogEntry{
		{Name: "Umbreon VMAX", Price: "8.00", Quantity: 5},
	}); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}

	start, err := m.Start(ctx, 100)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.Stage != StateIdle {
		t.Errorf("no claims means no checkout, got %s", start.Stage)
	}
	if len(start.Summary) != 0 {
		t.Errorf("expected empty summary, got %v", start.Summary)
	}
}

func TestCheckoutStartSweepsStaleClaims(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	items := seedAndClaim(t, database, buyer)

	// Age one item's claim past the staleness horizon.
	ts := time.Now().UTC().Add(-m.Store.StaleAfter - time.Hour).Format(time.DateTime)
	if _, err := database.Exec(
		`UPDATE claims SET created_at = ? WHERE item_id = ?`, ts, items[0].ID,
	); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	start, err := m.Start(ctx, buyer)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.StaleReleased != 1 {
		t.Errorf("expected 1 stale unit released, got %d", start.StaleReleased)
	}
	if len(start.Summary) != 1 {
		t.Errorf("expected the fresh claim only, got %v", start.Summary)
	}
}

func TestCheckoutEventsOutOfOrder(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)

	// Confirm before choosing delivery.
	m.Start(ctx, buyer)
	if _, err := m.Confirm(ctx, buyer, "Alice"); err == nil {
		t.Error("expected error confirming before delivery choice")
	}

	// Payment before confirmation.
	if _, err := m.SubmitPayment(ctx, buyer, "f", "screenshot"); err == nil {
		t.Error("expected error paying before confirmation")
	}
}

func TestReviewSurvivesLapsedSession(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)
	m.Start(ctx, buyer)
	m.ChooseDelivery(ctx, buyer, model.DeliveryTracked)
	order, err := m.Confirm(ctx, buyer, "Alice")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := m.SubmitPayment(ctx, buyer, "file-abc", "screenshot"); err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}

	// The session expires before the admin gets to the review.
	if err := store.ClearSession(ctx, database, buyer, model.SessionRoleBuyer); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}

	reviewed, err := m.ApplyReview(ctx, order.InvoiceNo, true)
	if err != nil {
		t.Fatalf("ApplyReview with lapsed session: %v", err)
	}
	if reviewed.Status != model.OrderStatusAwaitingAddress {
		t.Errorf("expected awaiting_address, got %s", reviewed.Status)
	}
}

func TestStartResumesOpenCheckout(t *testing.T) {
	m, database := newTestManager(t)
	ctx := context.Background()
	const buyer = 100

	seedAndClaim(t, database, buyer)
	m.Start(ctx, buyer)
	m.ChooseDelivery(ctx, buyer, model.DeliveryTracked)
	order, err := m.Confirm(ctx, buyer, "Alice")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Reopening must pick up the pending order, not reset the session.
	reopened, err := m.Start(ctx, buyer)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reopened.Stage != StateAwaitingPayment {
		t.Fatalf("expected awaiting_payment on reopen, got %s", reopened.Stage)
	}

	inv, err := m.SubmitPayment(ctx, buyer, "file-abc", "screenshot")
	if err != nil {
		t.Fatalf("SubmitPayment after reopen: %v", err)
	}
	if inv != order.InvoiceNo {
		t.Errorf("expected invoice %s, got %s", order.InvoiceNo, inv)
	}
}
