package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claimdesk/claimdesk/internal/model"
)

// SnapshotOrder copies a buyer's current active claims into a durable order
// in one transaction. Claims stay active and independently cancellable
// afterwards; only explicit reconciliation links later claim changes back to
// the order. The invoice number is derived from the order's own row id, so
// there is no second unique-key race.
func SnapshotOrder(ctx context.Context, db *sql.DB, buyerID int64, buyerName, deliveryMethod string, deliveryFee model.Money) (*model.Order, error) {
	if deliveryMethod != model.DeliveryTracked && deliveryMethod != model.DeliverySelf {
		return nil, fmt.Errorf("unknown delivery method %q", deliveryMethod)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT c.item_id, i.name, i.unit_price, COUNT(*) AS qty
		 FROM claims c
		 JOIN items i ON i.id = c.item_id
		 WHERE c.actor_id = ? AND c.status = 'active'
		 GROUP BY c.item_id, i.name, i.unit_price
		 ORDER BY MIN(c.created_at), c.item_id`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading claims for snapshot: %w", err)
	}
	var lines []model.OrderLine
	subtotal := model.Zero
	for rows.Next() {
		var line model.OrderLine
		var price string
		if err := rows.Scan(&line.ItemID, &line.Name, &price, &line.Qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claim line: %w", err)
		}
		line.UnitPrice, err = model.MoneyFromStored(price)
		if err != nil {
			rows.Close()
			return nil, err
		}
		subtotal = subtotal.Add(line.UnitPrice.MulInt(line.Qty))
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading claims for snapshot: %w", err)
	}

	if len(lines) == 0 {
		return nil, ErrNoClaimsToSnapshot
	}

	total := subtotal.Add(deliveryFee)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (buyer_id, buyer_name, delivery_method, cards_subtotal, delivery_fee, total)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		buyerID, buyerName, deliveryMethod, subtotal.String(), deliveryFee.String(), total.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	invoiceNo := InvoiceNo(orderID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET invoice_no = ? WHERE id = ?`, invoiceNo, orderID,
	); err != nil {
		return nil, fmt.Errorf("assigning invoice number: %w", err)
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, item_id, name, unit_price, qty)
			 VALUES (?, ?, ?, ?, ?)`,
			orderID, line.ItemID, line.Name, line.UnitPrice.String(), line.Qty,
		); err != nil {
			return nil, fmt.Errorf("creating order line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	return GetOrderByInvoice(ctx, db, invoiceNo)
}

// InvoiceNo derives the invoice identifier from an order's row id.
func InvoiceNo(orderID int64) string {
	return fmt.Sprintf("INV-%06d", orderID)
}

// reconResult describes what reconciliation did, if anything.
type reconResult struct {
	Adjusted       bool
	OrderCancelled bool
	InvoiceNo      string
}

// reconcileOrder adjusts the buyer's most recent open order after claims on
// an item were revoked: the matching line shrinks by the revoked units and
// totals are recomputed; an order whose subtotal reaches zero is cancelled
// outright. No matching order or line means there is nothing to reconcile,
// which is success.
func reconcileOrder(ctx context.Context, tx *sql.Tx, buyerID, itemID int64, unitsRevoked int) (reconResult, error) {
	var res reconResult

	var orderID int64
	var invoiceNo string
	var feeStr string
	err := tx.QueryRowContext(ctx,
		`SELECT id, COALESCE(invoice_no, ''), delivery_fee FROM orders
		 WHERE buyer_id = ? AND status NOT IN ('shipped', 'cancelled')
		 ORDER BY id DESC LIMIT 1`,
		buyerID,
	).Scan(&orderID, &invoiceNo, &feeStr)
	if err == sql.ErrNoRows {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("finding order to reconcile: %w", err)
	}

	var lineID int64
	var lineQty int
	err = tx.QueryRowContext(ctx,
		`SELECT id, qty FROM order_lines WHERE order_id = ? AND item_id = ?`,
		orderID, itemID,
	).Scan(&lineID, &lineQty)
	if err == sql.ErrNoRows {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("finding order line to reconcile: %w", err)
	}

	res.Adjusted = true
	res.InvoiceNo = invoiceNo

	reduce := min(unitsRevoked, lineQty)
	if lineQty-reduce <= 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM order_lines WHERE id = ?`, lineID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE order_lines SET qty = qty - ? WHERE id = ?`, reduce, lineID)
	}
	if err != nil {
		return res, fmt.Errorf("adjusting order line: %w", err)
	}

	// Recompute the subtotal from surviving lines.
	rows, err := tx.QueryContext(ctx,
		`SELECT unit_price, qty FROM order_lines WHERE order_id = ?`, orderID,
	)
	if err != nil {
		return res, fmt.Errorf("recomputing subtotal: %w", err)
	}
	subtotal := model.Zero
	for rows.Next() {
		var price string
		var qty int
		if err := rows.Scan(&price, &qty); err != nil {
			rows.Close()
			return res, fmt.Errorf("scanning order line: %w", err)
		}
		unit, err := model.MoneyFromStored(price)
		if err != nil {
			rows.Close()
			return res, err
		}
		subtotal = subtotal.Add(unit.MulInt(qty))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("recomputing subtotal: %w", err)
	}

	if subtotal.IsZero() {
		res.OrderCancelled = true
		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = 'cancelled', cards_subtotal = '0', delivery_fee = '0', total = '0'
			 WHERE id = ?`,
			orderID,
		)
		if err != nil {
			return res, fmt.Errorf("cancelling emptied order: %w", err)
		}
		return res, nil
	}

	fee, err := model.MoneyFromStored(feeStr)
	if err != nil {
		return res, err
	}
	total := subtotal.Add(fee)
	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET cards_subtotal = ?, total = ? WHERE id = ?`,
		subtotal.String(), total.String(), orderID,
	)
	if err != nil {
		return res, fmt.Errorf("updating reconciled totals: %w", err)
	}
	return res, nil
}

// GetOrderByInvoice returns an order with its lines. Returns ErrOrderNotFound
// if no such invoice.
func GetOrderByInvoice(ctx context.Context, db *sql.DB, invoiceNo string) (*model.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx,
		`SELECT id, COALESCE(invoice_no, ''), buyer_id, COALESCE(buyer_name, ''), delivery_method,
		        cards_subtotal, delivery_fee, total, status,
		        COALESCE(payment_proof_ref, ''), COALESCE(payment_proof_kind, ''),
		        COALESCE(tracking_number, ''), COALESCE(shipping_proof_ref, ''), created_at
		 FROM orders WHERE invoice_no = ?`, invoiceNo,
	))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	order.Lines, err = orderLines(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListBuyerOrders returns a buyer's orders, newest first, without lines.
func ListBuyerOrders(ctx context.Context, db *sql.DB, buyerID int64) ([]model.Order, error) {
	return listOrders(ctx, db,
		`SELECT id, COALESCE(invoice_no, ''), buyer_id, COALESCE(buyer_name, ''), delivery_method,
		        cards_subtotal, delivery_fee, total, status,
		        COALESCE(payment_proof_ref, ''), COALESCE(payment_proof_kind, ''),
		        COALESCE(tracking_number, ''), COALESCE(shipping_proof_ref, ''), created_at
		 FROM orders WHERE buyer_id = ? ORDER BY id DESC`,
		buyerID,
	)
}

// ListOrdersByStatus returns orders in a status, oldest first, for the admin
// review and packing lists. A limit of 0 means no limit.
func ListOrdersByStatus(ctx context.Context, db *sql.DB, status string, limit int) ([]model.Order, error) {
	query := `SELECT id, COALESCE(invoice_no, ''), buyer_id, COALESCE(buyer_name, ''), delivery_method,
	                 cards_subtotal, delivery_fee, total, status,
	                 COALESCE(payment_proof_ref, ''), COALESCE(payment_proof_kind, ''),
	                 COALESCE(tracking_number, ''), COALESCE(shipping_proof_ref, ''), created_at
	          FROM orders WHERE status = ? ORDER BY id`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return listOrders(ctx, db, query, args...)
}

// SetPaymentProof records the buyer's proof-of-payment reference and moves
// the order to verification.
func SetPaymentProof(ctx context.Context, db *sql.DB, invoiceNo, proofRef, proofKind string) error {
	return transitionOrder(ctx, db, invoiceNo, model.OrderStatusVerifying,
		`payment_proof_ref = ?, payment_proof_kind = ?`, proofRef, proofKind)
}

// ReviewPayment applies the administrator's verdict on a submitted payment.
// Approval advances tracked orders to the address step and self-collection
// orders straight to packing; rejection returns the order to awaiting_payment.
func ReviewPayment(ctx context.Context, db *sql.DB, invoiceNo string, approve bool) (*model.Order, error) {
	order, err := GetOrderByInvoice(ctx, db, invoiceNo)
	if err != nil {
		return nil, err
	}

	next := model.OrderStatusAwaitingPayment
	if approve {
		if order.DeliveryMethod == model.DeliveryTracked {
			next = model.OrderStatusAwaitingAddress
		} else {
			next = model.OrderStatusPackingPending
		}
	}

	if err := transitionOrder(ctx, db, invoiceNo, next, ""); err != nil {
		return nil, err
	}
	return GetOrderByInvoice(ctx, db, invoiceNo)
}

// SaveAddress stores the confirmed shipping address for a tracked order and
// moves it to packing.
func SaveAddress(ctx context.Context, db *sql.DB, invoiceNo string, addr model.Address) error {
	order, err := GetOrderByInvoice(ctx, db, invoiceNo)
	if err != nil {
		return err
	}
	if order.DeliveryMethod != model.DeliveryTracked {
		return fmt.Errorf("order %s is self-collection, no address needed", invoiceNo)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	confirmed := 0
	if addr.Confirmed {
		confirmed = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO addresses (order_id, name, street, unit, postal, phone, confirmed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id) DO UPDATE SET
		   name = excluded.name, street = excluded.street, unit = excluded.unit,
		   postal = excluded.postal, phone = excluded.phone, confirmed = excluded.confirmed`,
		order.ID, addr.Name, addr.Street, addr.Unit, addr.Postal, addr.Phone, confirmed,
	); err != nil {
		return fmt.Errorf("saving address: %w", err)
	}

	if err := transitionOrderTx(ctx, tx, invoiceNo, model.OrderStatusPackingPending, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing address: %w", err)
	}
	return nil
}

// GetAddress returns the shipping address for an order, or nil if none saved.
func GetAddress(ctx context.Context, db *sql.DB, orderID int64) (*model.Address, error) {
	addr := &model.Address{}
	var confirmed int
	err := db.QueryRowContext(ctx,
		`SELECT name, street, unit, postal, phone, confirmed FROM addresses WHERE order_id = ?`,
		orderID,
	).Scan(&addr.Name, &addr.Street, &addr.Unit, &addr.Postal, &addr.Phone, &confirmed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting address: %w", err)
	}
	addr.Confirmed = confirmed != 0
	return addr, nil
}

// MarkPacked records that an order's items are packed.
func MarkPacked(ctx context.Context, db *sql.DB, invoiceNo string) error {
	return transitionOrder(ctx, db, invoiceNo, model.OrderStatusPacked, "")
}

// MarkShipped records the validated tracking number and shipping proof and
// moves the order to its terminal shipped status.
func MarkShipped(ctx context.Context, db *sql.DB, invoiceNo, tracking, proofRef string) error {
	if tracking == "" {
		return fmt.Errorf("tracking number required")
	}
	return transitionOrder(ctx, db, invoiceNo, model.OrderStatusShipped,
		`tracking_number = ?, shipping_proof_ref = ?`, tracking, proofRef)
}

// transitionOrder moves an order to a new status, rejecting moves the
// transition table does not allow. extraSet is an optional SQL fragment of
// additional column assignments with its arguments.
func transitionOrder(ctx context.Context, db *sql.DB, invoiceNo, to, extraSet string, extraArgs ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := transitionOrderTx(ctx, tx, invoiceNo, to, extraSet, extraArgs...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing status change: %w", err)
	}
	return nil
}

func transitionOrderTx(ctx context.Context, tx *sql.Tx, invoiceNo, to, extraSet string, extraArgs ...any) error {
	var current string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE invoice_no = ?`, invoiceNo,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("reading order status: %w", err)
	}

	if !model.CanTransition(current, to) {
		return &InvalidTransitionError{From: current, To: to}
	}

	set := `status = ?`
	args := []any{to}
	if extraSet != "" {
		set += `, ` + extraSet
		args = append(args, extraArgs...)
	}
	args = append(args, invoiceNo)

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET `+set+` WHERE invoice_no = ?`, args...,
	); err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	return nil
}

func orderLines(ctx context.Context, db *sql.DB, orderID int64) ([]model.OrderLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, item_id, name, unit_price, qty
		 FROM order_lines WHERE order_id = ? ORDER BY id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var line model.OrderLine
		var price string
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Name, &price, &line.Qty); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		line.UnitPrice, err = model.MoneyFromStored(price)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func listOrders(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	order := &model.Order{}
	var subtotal, fee, total string
	err := row.Scan(&order.ID, &order.InvoiceNo, &order.BuyerID, &order.BuyerName, &order.DeliveryMethod,
		&subtotal, &fee, &total, &order.Status,
		&order.PaymentProofRef, &order.PaymentProofKind,
		&order.TrackingNumber, &order.ShippingProofRef, &order.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	if order.CardsSubtotal, err = model.MoneyFromStored(subtotal); err != nil {
		return nil, err
	}
	if order.DeliveryFee, err = model.MoneyFromStored(fee); err != nil {
		return nil, err
	}
	if order.Total, err = model.MoneyFromStored(total); err != nil {
		return nil, err
	}
	return order, nil
}
