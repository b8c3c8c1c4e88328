package api

import (
	"net/http"

	"github.com/claimdesk/claimdesk/internal/checkout"
)

// CheckoutHandler exposes the buyer checkout session flow to the gateway.
type CheckoutHandler struct {
	Manager *checkout.Manager
}

type checkoutStartRequest struct {
	ActorID int64 `json:"actor_id"`
}

type deliveryRequest struct {
	ActorID int64  `json:"actor_id"`
	Method  string `json:"method"`
}

type confirmRequest struct {
	ActorID   int64  `json:"actor_id"`
	BuyerName string `json:"buyer_name"`
}

type paymentRequest struct {
	ActorID   int64  `json:"actor_id"`
	ProofRef  string `json:"proof_ref"`
	ProofKind string `json:"proof_kind"`
}

type addressRequest struct {
	ActorID int64  `json:"actor_id"`
	Text    string `json:"text"`
}

// Start handles POST /api/checkout/start.
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req checkoutStartRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "actor_id required")
		return
	}

	result, err := h.Manager.Start(r.Context(), req.ActorID)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to start checkout")
		}
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// ChooseDelivery handles POST /api/checkout/delivery.
func (h *CheckoutHandler) ChooseDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "actor_id required")
		return
	}

	stage, fee, err := h.Manager.ChooseDelivery(r.Context(), req.ActorID, req.Method)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"stage":        stage,
		"delivery_fee": fee.Display(),
	})
}

// Confirm handles POST /api/checkout/confirm: the claim set becomes an order.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "actor_id required")
		return
	}

	order, err := h.Manager.Confirm(r.Context(), req.ActorID, req.BuyerName)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to confirm checkout")
		}
		return
	}

	jsonResponse(w, http.StatusCreated, order)
}

// SubmitPayment handles POST /api/checkout/payment.
func (h *CheckoutHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID <= 0 || req.ProofRef == "" {
		jsonError(w, http.StatusBadRequest, "actor_id and proof_ref required")
		return
	}

	invoiceNo, err := h.Manager.SubmitPayment(r.Context(), req.ActorID, req.ProofRef, req.ProofKind)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to submit payment")
		}
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"invoice_no": invoiceNo})
}

// SubmitAddress handles POST /api/checkout/address. The body text is the
// buyer's filled-in address template.
func (h *CheckoutHandler) SubmitAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "actor_id required")
		return
	}

	addr, err := h.Manager.SubmitAddress(r.Context(), req.ActorID, req.Text)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	jsonResponse(w, http.StatusOK, addr)
}

// Stage handles GET /api/checkout/stage?actor_id=N.
func (h *CheckoutHandler) Stage(w http.ResponseWriter, r *http.Request) {
	actorID, err := parseActorID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid actor_id")
		return
	}

	stage, err := h.Manager.Stage(r.Context(), actorID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"stage": string(stage)})
}

// AddressTemplate handles GET /api/checkout/address-template.
func (h *CheckoutHandler) AddressTemplate(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"template": checkout.AddressTemplate()})
}
