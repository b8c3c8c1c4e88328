package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

// sessionType identifies checkout rows in the sessions table.
const sessionType = "checkout"

// Config holds checkout policy.
type Config struct {
	// TrackedFee is the delivery fee for tracked mail; self-collection is free.
	TrackedFee model.Money

	// SessionTTL is how long an inactive checkout session survives.
	SessionTTL time.Duration
}

// DefaultConfig matches production policy: $3.50 tracked mail, sessions kept
// for two days.
func DefaultConfig() Config {
	fee, _ := model.ParsePrice("3.50")
	return Config{
		TrackedFee: fee,
		SessionTTL: 48 * time.Hour,
	}
}

// payload is the durable state of one buyer's checkout session.
type payload struct {
	Stage          State  `json:"stage"`
	DeliveryMethod string `json:"delivery_method,omitempty"`
	DeliveryFee    string `json:"delivery_fee,omitempty"`
	InvoiceNo      string `json:"invoice_no,omitempty"`
}

// Manager drives checkout sessions against the durable session store.
type Manager struct {
	DB    *sql.DB
	Cfg   Config
	Store store.Config
}

// StartResult is what session start reports back to the transport layer.
type StartResult struct {
	Stage         State                    `json:"stage"`
	StaleReleased int                      `json:"stale_released"`
	Summary       []model.ClaimSummaryLine `json:"summary"`
	CardsSubtotal string                   `json:"cards_subtotal"`
}

// Start opens (or reopens) a buyer's session: stale claims are swept first,
// then the claim summary decides whether checkout can begin.
func (m *Manager) Start(ctx context.Context, actorID int64) (*StartResult, error) {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return nil, err
	}
	// An order in flight keeps its session payload; reopening resumes it
	// rather than resetting and losing the invoice.
	resume := p.InvoiceNo != "" && p.Stage != StateDone

	released := 0
	if !resume {
		released, err = store.ReleaseStaleClaims(ctx, m.DB, m.Store, actorID)
		if err != nil {
			return nil, err
		}
	}

	summary, err := store.SummarizeClaims(ctx, m.DB, actorID)
	if err != nil {
		return nil, err
	}

	result := &StartResult{StaleReleased: released, Summary: summary}

	subtotal := model.Zero
	for _, line := range summary {
		subtotal = subtotal.Add(line.Price.MulInt(line.Quantity))
	}
	result.CardsSubtotal = subtotal.Display()

	if resume {
		result.Stage = p.Stage
		return result, nil
	}

	stage := StateIdle
	if len(summary) > 0 {
		stage, err = Next(StateIdle, EventStart)
		if err != nil {
			return nil, err
		}
	}
	result.Stage = stage

	if err := m.save(ctx, actorID, payload{Stage: stage}); err != nil {
		return nil, err
	}
	return result, nil
}

// ChooseDelivery records the buyer's delivery choice and its fee.
func (m *Manager) ChooseDelivery(ctx context.Context, actorID int64, method string) (State, model.Money, error) {
	var fee model.Money
	switch method {
	case model.DeliveryTracked:
		fee = m.Cfg.TrackedFee
	case model.DeliverySelf:
		fee = model.Zero
	default:
		return "", model.Zero, fmt.Errorf("unknown delivery method %q", method)
	}

	p, err := m.load(ctx, actorID)
	if err != nil {
		return "", model.Zero, err
	}

	next, err := Next(p.Stage, EventChooseDelivery)
	if err != nil {
		return p.Stage, model.Zero, err
	}

	p.Stage = next
	p.DeliveryMethod = method
	p.DeliveryFee = fee.String()
	if err := m.save(ctx, actorID, p); err != nil {
		return "", model.Zero, err
	}
	return next, fee, nil
}

// Confirm snapshots the buyer's claims into an order and moves the session to
// awaiting payment.
func (m *Manager) Confirm(ctx context.Context, actorID int64, buyerName string) (*model.Order, error) {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	next, err := Next(p.Stage, EventConfirm)
	if err != nil {
		return nil, err
	}

	fee, err := model.MoneyFromStored(p.DeliveryFee)
	if err != nil {
		return nil, err
	}

	order, err := store.SnapshotOrder(ctx, m.DB, actorID, buyerName, p.DeliveryMethod, fee)
	if err != nil {
		return nil, err
	}

	p.Stage = next
	p.InvoiceNo = order.InvoiceNo
	if err := m.save(ctx, actorID, p); err != nil {
		return nil, err
	}
	return order, nil
}

// SubmitPayment records the buyer's proof-of-payment against their open
// invoice and moves the session to admin review.
func (m *Manager) SubmitPayment(ctx context.Context, actorID int64, proofRef, proofKind string) (string, error) {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return "", err
	}

	next, err := Next(p.Stage, EventSubmitPayment)
	if err != nil {
		return "", err
	}
	if p.InvoiceNo == "" {
		return "", store.ErrOrderNotFound
	}

	if err := store.SetPaymentProof(ctx, m.DB, p.InvoiceNo, proofRef, proofKind); err != nil {
		return "", err
	}

	p.Stage = next
	if err := m.save(ctx, actorID, p); err != nil {
		return "", err
	}
	return p.InvoiceNo, nil
}

// ApplyReview applies the admin's payment verdict to both the order and the
// buyer's session.
func (m *Manager) ApplyReview(ctx context.Context, invoiceNo string, approve bool) (*model.Order, error) {
	order, err := store.ReviewPayment(ctx, m.DB, invoiceNo, approve)
	if err != nil {
		return nil, err
	}

	event := EventReject
	if approve {
		if order.DeliveryMethod == model.DeliveryTracked {
			event = EventApproveTracked
		} else {
			event = EventApproveSelf
		}
	}

	// The verdict stands even when the buyer's session has lapsed; the
	// order row already moved.
	if err := m.advance(ctx, order.BuyerID, event); err != nil {
		var eventErr *InvalidEventError
		if !errors.As(err, &eventErr) {
			return nil, err
		}
	}
	return order, nil
}

// SubmitAddress parses and saves the buyer's address block for a tracked
// order; the order moves to packing.
func (m *Manager) SubmitAddress(ctx context.Context, actorID int64, text string) (*model.Address, error) {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	next, err := Next(p.Stage, EventAddressSaved)
	if err != nil {
		return nil, err
	}
	if p.InvoiceNo == "" {
		return nil, store.ErrOrderNotFound
	}

	addr, err := ParseAddressBlock(text)
	if err != nil {
		return nil, err
	}
	addr.Confirmed = true

	if err := store.SaveAddress(ctx, m.DB, p.InvoiceNo, *addr); err != nil {
		return nil, err
	}

	p.Stage = next
	if err := m.save(ctx, actorID, p); err != nil {
		return nil, err
	}
	return addr, nil
}

// NotifyShipped closes the buyer's session when their order ships.
func (m *Manager) NotifyShipped(ctx context.Context, buyerID int64) error {
	return m.advance(ctx, buyerID, EventShipped)
}

// Stage returns a buyer's current checkout stage.
func (m *Manager) Stage(ctx context.Context, actorID int64) (State, error) {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return "", err
	}
	return p.Stage, nil
}

func (m *Manager) advance(ctx context.Context, actorID int64, event Event) error {
	p, err := m.load(ctx, actorID)
	if err != nil {
		return err
	}
	next, err := Next(p.Stage, event)
	if err != nil {
		return err
	}
	p.Stage = next
	return m.save(ctx, actorID, p)
}

// load reads the buyer's session payload; a missing session is an idle one.
func (m *Manager) load(ctx context.Context, actorID int64) (payload, error) {
	s, err := store.GetSession(ctx, m.DB, actorID, model.SessionRoleBuyer)
	if err != nil {
		return payload{}, err
	}
	if s == nil {
		return payload{Stage: StateIdle}, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(s.Payload), &p); err != nil {
		return payload{}, fmt.Errorf("decoding checkout session: %w", err)
	}
	if p.Stage == "" {
		p.Stage = StateIdle
	}
	return p, nil
}

func (m *Manager) save(ctx context.Context, actorID int64, p payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding checkout session: %w", err)
	}
	return store.UpsertSession(ctx, m.DB, actorID, model.SessionRoleBuyer, sessionType, string(data), m.Cfg.SessionTTL)
}
