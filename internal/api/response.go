package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/claimdesk/claimdesk/internal/checkout"
	"github.com/claimdesk/claimdesk/internal/store"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// renderEngineError maps reservation engine and checkout errors to HTTP
// responses. Errors that carry state (remaining stock, window length) are
// rendered with it, so the transport layer never needs a follow-up query.
// Returns false if the error is not an engine error and the caller should
// treat it as internal.
func renderEngineError(w http.ResponseWriter, err error) bool {
	var (
		stockErr  *store.InsufficientStockError
		dupErr    *store.DuplicateClaimError
		windowErr *store.CancelWindowError
		transErr  *store.InvalidTransitionError
		eventErr  *checkout.InvalidEventError
		invariant *store.InvariantViolationError
	)

	switch {
	case errors.Is(err, store.ErrNotTracked):
		jsonError(w, http.StatusNotFound, "item not available")
	case errors.Is(err, store.ErrOrderNotFound):
		jsonError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, store.ErrInvalidQuantity):
		jsonError(w, http.StatusBadRequest, "invalid quantity; use a positive number or \"all\"")
	case errors.Is(err, store.ErrNothingAvailable):
		jsonError(w, http.StatusConflict, "nothing available to claim")
	case errors.Is(err, store.ErrNoActiveClaims):
		jsonError(w, http.StatusConflict, "no active claims on this item")
	case errors.Is(err, store.ErrNoClaimsToSnapshot):
		jsonError(w, http.StatusConflict, "no active claims to check out")
	case errors.As(err, &stockErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"requested": stockErr.Requested,
			"remaining": stockErr.Remaining,
		})
	case errors.As(err, &dupErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error": dupErr.Error(),
			"held":  dupErr.Held,
		})
	case errors.As(err, &windowErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error":          windowErr.Error(),
			"window_seconds": int(windowErr.Window.Seconds()),
		})
	case errors.As(err, &transErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error": transErr.Error(),
			"from":  transErr.From,
			"to":    transErr.To,
		})
	case errors.As(err, &eventErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error": eventErr.Error(),
			"stage": string(eventErr.State),
		})
	case errors.As(err, &invariant):
		// Should be unreachable given correct locking; surface loudly.
		log.Printf("INVARIANT VIOLATION: %v", err)
		jsonError(w, http.StatusInternalServerError, "inventory invariant violated")
	default:
		return false
	}
	return true
}
