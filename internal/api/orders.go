package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/claimdesk/claimdesk/internal/auth"
	"github.com/claimdesk/claimdesk/internal/checkout"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
	"github.com/claimdesk/claimdesk/internal/tracking"
)

// OrdersHandler handles order queries and the admin fulfillment actions.
type OrdersHandler struct {
	DB      *sql.DB
	Manager *checkout.Manager
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

type shipRequest struct {
	// Tracking is raw text; a tracking number is extracted from it, with
	// common OCR digit confusions normalized.
	Tracking string `json:"tracking"`
	ProofRef string `json:"proof_ref"`
}

// List handles GET /api/orders, filtered by ?status= or ?buyer_id=. The
// gateway may only query per buyer (a buyer's own order history); the admin
// review and packing lists are status queries.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		orders []model.Order
		err    error
	)

	if buyer := r.URL.Query().Get("buyer_id"); buyer != "" {
		buyerID, perr := strconv.ParseInt(buyer, 10, 64)
		if perr != nil || buyerID <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid buyer_id")
			return
		}
		orders, err = store.ListBuyerOrders(r.Context(), h.DB, buyerID)
	} else {
		claims := GetClaims(r.Context())
		if claims == nil || claims.Role != auth.RoleAdmin {
			jsonError(w, http.StatusForbidden, "status queries are administrator only")
			return
		}
		status := r.URL.Query().Get("status")
		orders, err = store.ListOrdersByStatus(r.Context(), h.DB, status, 100)
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Get handles GET /api/orders/{invoice}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := store.GetOrderByInvoice(r.Context(), h.DB, r.PathValue("invoice"))
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to get order")
		}
		return
	}
	jsonResponse(w, http.StatusOK, order)
}

// Document handles GET /api/orders/{invoice}/document. The gateway passes the
// requesting buyer's id; buyers only see their own invoices, the admin sees
// everything.
func (h *OrdersHandler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := store.OrderDocument(r.Context(), h.DB, r.PathValue("invoice"))
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to build document")
		}
		return
	}

	claims := GetClaims(r.Context())
	if claims == nil || claims.Role != auth.RoleAdmin {
		actorID, perr := parseActorID(r)
		if perr != nil || actorID != doc.BuyerID {
			jsonError(w, http.StatusForbidden, "not your order")
			return
		}
	}

	jsonResponse(w, http.StatusOK, doc)
}

// Review handles POST /api/orders/{invoice}/review: the admin's payment
// verdict. Approval routes the order by delivery method, rejection sends the
// buyer back to awaiting payment.
func (h *OrdersHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.Manager.ApplyReview(r.Context(), r.PathValue("invoice"), req.Approve)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to review payment")
		}
		return
	}

	jsonResponse(w, http.StatusOK, order)
}

// Packed handles POST /api/orders/{invoice}/packed.
func (h *OrdersHandler) Packed(w http.ResponseWriter, r *http.Request) {
	invoice := r.PathValue("invoice")
	if err := store.MarkPacked(r.Context(), h.DB, invoice); err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to mark packed")
		}
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"invoice_no": invoice, "status": model.OrderStatusPacked})
}

// Ship handles POST /api/orders/{invoice}/ship. The tracking field may be
// noisy text (for example a pasted label scan); the number is extracted and
// validated before the order moves.
func (h *OrdersHandler) Ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	number := tracking.Extract(req.Tracking)
	if number == "" && tracking.Valid(req.Tracking) {
		number = req.Tracking
	}
	if number == "" {
		jsonError(w, http.StatusBadRequest, "no valid tracking number found")
		return
	}

	invoice := r.PathValue("invoice")
	order, err := store.GetOrderByInvoice(r.Context(), h.DB, invoice)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to get order")
		}
		return
	}

	if err := store.MarkShipped(r.Context(), h.DB, invoice, number, req.ProofRef); err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to mark shipped")
		}
		return
	}

	if err := h.Manager.NotifyShipped(r.Context(), order.BuyerID); err != nil {
		// The order is shipped either way; a stale or missing session
		// should not undo that.
		var eventErr *checkout.InvalidEventError
		if !errors.As(err, &eventErr) {
			jsonError(w, http.StatusInternalServerError, "failed to close session")
			return
		}
	}

	jsonResponse(w, http.StatusOK, map[string]string{
		"invoice_no": invoice,
		"status":     model.OrderStatusShipped,
		"tracking":   number,
	})
}

// parseActorID reads actor_id from the query string.
func parseActorID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
}
