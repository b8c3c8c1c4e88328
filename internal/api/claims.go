package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

// ClaimsHandler handles reservation and revocation endpoints. The gateway
// calls the buyer routes on behalf of chat users, so actor identity comes
// from the request body rather than the token.
type ClaimsHandler struct {
	DB  *sql.DB
	Cfg store.Config
}

type claimRequest struct {
	ItemID      int64  `json:"item_id"`
	ActorID     int64  `json:"actor_id"`
	DisplayName string `json:"display_name"`
	Quantity    string `json:"quantity"`
}

type cancelRequest struct {
	ItemID  int64 `json:"item_id"`
	ActorID int64 `json:"actor_id"`
}

// Claim handles POST /api/claims.
func (h *ClaimsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 || req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "item_id and actor_id required")
		return
	}

	result, err := store.ClaimUnits(r.Context(), h.DB, h.Cfg, req.ItemID, req.ActorID, req.DisplayName, req.Quantity)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to claim")
		}
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// Cancel handles POST /api/claims/cancel. Buyers are held to the cancel
// window; the admin route below is not.
func (h *ClaimsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 || req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "item_id and actor_id required")
		return
	}

	result, err := store.CancelClaims(r.Context(), h.DB, h.Cfg, req.ItemID, req.ActorID, false)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to cancel")
		}
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// Summary handles GET /api/claims/summary?actor_id=N.
func (h *ClaimsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actorID, err := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err != nil || actorID <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid actor_id")
		return
	}

	summary, err := store.SummarizeClaims(r.Context(), h.DB, actorID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to summarize claims")
		return
	}
	if summary == nil {
		summary = []model.ClaimSummaryLine{}
	}

	subtotal := model.Zero
	for _, line := range summary {
		subtotal = subtotal.Add(line.Price.MulInt(line.Quantity))
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"lines":    summary,
		"subtotal": subtotal.Display(),
	})
}

// Revoke handles POST /api/admin/revoke. Revocation and order reconciliation
// happen in one transaction, so the response already reflects the adjusted
// order.
func (h *ClaimsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 || req.ActorID <= 0 {
		jsonError(w, http.StatusBadRequest, "item_id and actor_id required")
		return
	}

	result, err := store.AdminRevoke(r.Context(), h.DB, h.Cfg, req.ItemID, req.ActorID)
	if err != nil {
		if !renderEngineError(w, err) {
			jsonError(w, http.StatusInternalServerError, "failed to revoke")
		}
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// Claimants handles GET /api/admin/claimants.
func (h *ClaimsHandler) Claimants(w http.ResponseWriter, r *http.Request) {
	claimants, err := store.ActiveClaimants(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list claimants")
		return
	}
	if claimants == nil {
		claimants = []model.Claimant{}
	}
	jsonResponse(w, http.StatusOK, claimants)
}
