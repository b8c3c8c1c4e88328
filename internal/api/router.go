package api

import (
	"database/sql"
	"net/http"

	"github.com/claimdesk/claimdesk/internal/checkout"
	"github.com/claimdesk/claimdesk/internal/store"
)

// NewRouter creates the API router with all endpoints registered. Buyer-side
// routes are called by the chat gateway with buyer identity in the payload;
// admin routes require the administrator token.
func NewRouter(db *sql.DB, jwtSecret string, storeCfg store.Config, checkoutCfg checkout.Config) http.Handler {
	mux := http.NewServeMux()

	manager := &checkout.Manager{DB: db, Cfg: checkoutCfg, Store: storeCfg}

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	claimsHandler := &ClaimsHandler{DB: db, Cfg: storeCfg}
	catalogHandler := &CatalogHandler{DB: db}
	checkoutHandler := &CheckoutHandler{Manager: manager}
	ordersHandler := &OrdersHandler{DB: db, Manager: manager}

	authMW := AuthMiddleware(jwtSecret)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Catalog: browsing for everyone authenticated, ingestion admin only.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(catalogHandler.List)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(catalogHandler.Get)))
	mux.Handle("GET /api/items/{id}/photo", authMW(http.HandlerFunc(catalogHandler.GetPhoto)))
	mux.Handle("POST /api/catalog", authMW(RequireAdmin(http.HandlerFunc(catalogHandler.Replace))))
	mux.Handle("PUT /api/items/{id}/photo", authMW(RequireAdmin(http.HandlerFunc(catalogHandler.UploadPhoto))))

	// Claims: buyer routes via the gateway, revocation admin only.
	mux.Handle("POST /api/claims", authMW(http.HandlerFunc(claimsHandler.Claim)))
	mux.Handle("POST /api/claims/cancel", authMW(http.HandlerFunc(claimsHandler.Cancel)))
	mux.Handle("GET /api/claims/summary", authMW(http.HandlerFunc(claimsHandler.Summary)))
	mux.Handle("POST /api/admin/revoke", authMW(RequireAdmin(http.HandlerFunc(claimsHandler.Revoke))))
	mux.Handle("GET /api/admin/claimants", authMW(RequireAdmin(http.HandlerFunc(claimsHandler.Claimants))))

	// Checkout session flow.
	mux.Handle("POST /api/checkout/start", authMW(http.HandlerFunc(checkoutHandler.Start)))
	mux.Handle("POST /api/checkout/delivery", authMW(http.HandlerFunc(checkoutHandler.ChooseDelivery)))
	mux.Handle("POST /api/checkout/confirm", authMW(http.HandlerFunc(checkoutHandler.Confirm)))
	mux.Handle("POST /api/checkout/payment", authMW(http.HandlerFunc(checkoutHandler.SubmitPayment)))
	mux.Handle("POST /api/checkout/address", authMW(http.HandlerFunc(checkoutHandler.SubmitAddress)))
	mux.Handle("GET /api/checkout/stage", authMW(http.HandlerFunc(checkoutHandler.Stage)))
	mux.Handle("GET /api/checkout/address-template", authMW(http.HandlerFunc(checkoutHandler.AddressTemplate)))

	// Orders: queries plus the admin fulfillment actions.
	mux.Handle("GET /api/orders", authMW(http.HandlerFunc(ordersHandler.List)))
	mux.Handle("GET /api/orders/{invoice}", authMW(http.HandlerFunc(ordersHandler.Get)))
	mux.Handle("GET /api/orders/{invoice}/document", authMW(http.HandlerFunc(ordersHandler.Document)))
	mux.Handle("POST /api/orders/{invoice}/review", authMW(RequireAdmin(http.HandlerFunc(ordersHandler.Review))))
	mux.Handle("POST /api/orders/{invoice}/packed", authMW(RequireAdmin(http.HandlerFunc(ordersHandler.Packed))))
	mux.Handle("POST /api/orders/{invoice}/ship", authMW(RequireAdmin(http.HandlerFunc(ordersHandler.Ship))))

	return LoggingMiddleware(mux)
}
