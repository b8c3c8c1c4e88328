package api

import (
	"crypto/subtle"
	"database/sql"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/claimdesk/claimdesk/internal/auth"
	"github.com/claimdesk/claimdesk/internal/store"
)

// AuthHandler issues tokens for the two principals: the fixed administrator
// (password, bcrypt-checked) and the chat gateway (shared key).
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
}

type loginRequest struct {
	Role   string `json:"role"`
	Secret string `json:"secret"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Role {
	case auth.RoleAdmin:
		hash, err := store.GetSetting(r.Context(), h.DB, store.SettingAdminPassHash)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to load credentials")
			return
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Secret)) != nil {
			jsonError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
	case auth.RoleGateway:
		key, err := store.GetSetting(r.Context(), h.DB, store.SettingGatewayKey)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to load credentials")
			return
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(req.Secret)) != 1 {
			jsonError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
	default:
		jsonError(w, http.StatusBadRequest, "unknown role")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, req.Role)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"token": token})
}
