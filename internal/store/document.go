package store

import (
	"context"
	"database/sql"

	"github.com/claimdesk/claimdesk/internal/model"
)

// Document is the plain line-item view of an order handed to the external
// document generator. Rendering is not this service's concern.
type Document struct {
	InvoiceNo      string         `json:"invoice_no"`
	BuyerID        int64          `json:"buyer_id"`
	BuyerName      string         `json:"buyer_name,omitempty"`
	DeliveryMethod string         `json:"delivery_method"`
	Lines          []DocumentLine `json:"lines"`
	CardsSubtotal  string         `json:"cards_subtotal"`
	DeliveryFee    string         `json:"delivery_fee"`
	Total          string         `json:"total"`
	Address        *model.Address `json:"address,omitempty"`
}

// DocumentLine is one invoice line.
type DocumentLine struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Qty       int    `json:"qty"`
}

// OrderDocument builds the document view of an order, including the shipping
// address when one has been saved.
func OrderDocument(ctx context.Context, db *sql.DB, invoiceNo string) (*Document, error) {
	order, err := GetOrderByInvoice(ctx, db, invoiceNo)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		InvoiceNo:      order.InvoiceNo,
		BuyerID:        order.BuyerID,
		BuyerName:      order.BuyerName,
		DeliveryMethod: order.DeliveryMethod,
		CardsSubtotal:  order.CardsSubtotal.Display(),
		DeliveryFee:    order.DeliveryFee.Display(),
		Total:          order.Total.Display(),
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			Name:      line.Name,
			UnitPrice: line.UnitPrice.Display(),
			Qty:       line.Qty,
		})
	}

	doc.Address, err = GetAddress(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
