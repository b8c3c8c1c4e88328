package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/claimdesk/claimdesk/internal/checkout"
	"github.com/claimdesk/claimdesk/internal/db"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, string, string) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret, store.DefaultConfig(), checkout.DefaultConfig())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.SetSetting(ctx, database, store.SettingAdminPassHash, string(hash))
	store.SetSetting(ctx, database, store.SettingGatewayKey, "gateway-key")

	adminToken := login(t, server, "admin", "password")
	gatewayToken := login(t, server, "gateway", "gateway-key")
	return server, adminToken, gatewayToken
}

func login(t *testing.T, server *httptest.Server, role, secret string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"role": role, "secret": secret})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s failed: %d", role, resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doJSON(t *testing.T, req *http.Request, wantStatus int, out any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d", req.Method, req.URL.Path, wantStatus, resp.StatusCode)
	}
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
}

// uploadCatalog posts a CSV and returns the created items.
func uploadCatalog(t *testing.T, server *httptest.Server, adminToken, csv string) []model.Item {
	t.Helper()
	req, _ := http.NewRequest("POST", server.URL+"/api/catalog", strings.NewReader(csv))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "text/csv")

	var items []model.Item
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("catalog upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("catalog upload: expected 201, got %d", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&items)
	return items
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"role": "admin", "secret": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, _ = json.Marshal(map[string]string{"role": "superuser", "secret": "x"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminRoutesRejectGateway(t *testing.T) {
	server, _, gatewayToken := setupTestServer(t)

	req, _ := authRequest("POST", server.URL+"/api/admin/revoke", gatewayToken, map[string]any{
		"item_id": 1, "actor_id": 1,
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// No token at all.
	resp, _ = http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCatalogUploadAndBrowse(t *testing.T) {
	server, adminToken, gatewayToken := setupTestServer(t)

	items := uploadCatalog(t, server, adminToken,
		"name,price,availability\nUmbreon VMAX,$8.00,5\nSylveon V,4.50,3\n")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	req, _ := authRequest("GET", server.URL+"/api/items", gatewayToken, nil)
	var listed []model.Item
	doJSON(t, req, http.StatusOK, &listed)
	if len(listed) != 2 || listed[0].Name != "Umbreon VMAX" {
		t.Errorf("listed: %v", listed)
	}

	// Bad CSV is rejected.
	req, _ = http.NewRequest("POST", server.URL+"/api/catalog", strings.NewReader("name,price\nX,1\n"))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing column, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestClaimAPIFlow(t *testing.T) {
	server, adminToken, gatewayToken := setupTestServer(t)

	items := uploadCatalog(t, server, adminToken,
		"name,price,availability\nDragonite,20.00,3\n")
	itemID := items[0].ID

	// A claims 2.
	req, _ := authRequest("POST", server.URL+"/api/claims", gatewayToken, map[string]any{
		"item_id": itemID, "actor_id": 1, "display_name": "A", "quantity": "2",
	})
	var claimResp store.ClaimResult
	doJSON(t, req, http.StatusOK, &claimResp)
	if claimResp.Reserved != 2 || claimResp.Remaining != 1 {
		t.Errorf("claim: %+v", claimResp)
	}

	// B takes all, gets the last one.
	req, _ = authRequest("POST", server.URL+"/api/claims", gatewayToken, map[string]any{
		"item_id": itemID, "actor_id": 2, "display_name": "B", "quantity": "all",
	})
	doJSON(t, req, http.StatusOK, &claimResp)
	if claimResp.Reserved != 1 {
		t.Errorf("claim all: %+v", claimResp)
	}

	// C gets a conflict.
	req, _ = authRequest("POST", server.URL+"/api/claims", gatewayToken, map[string]any{
		"item_id": itemID, "actor_id": 3, "display_name": "C", "quantity": "1",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 when sold out, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin revokes A; stock comes back.
	req, _ = authRequest("POST", server.URL+"/api/admin/revoke", adminToken, map[string]any{
		"item_id": itemID, "actor_id": 1,
	})
	var revokeResp store.RevokeResult
	doJSON(t, req, http.StatusOK, &revokeResp)
	if revokeResp.Released != 2 || revokeResp.Remaining != 2 {
		t.Errorf("revoke: %+v", revokeResp)
	}

	// Unknown item 404s.
	req, _ = authRequest("POST", server.URL+"/api/claims", gatewayToken, map[string]any{
		"item_id": 9999, "actor_id": 5, "quantity": "1",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCheckoutAPIFlow(t *testing.T) {
	server, adminToken, gatewayToken := setupTestServer(t)

	items := uploadCatalog(t, server, adminToken,
		"name,price,availability\nUmbreon VMAX,8.00,5\nSylveon V,4.50,5\n")

	for _, item := range items {
		req, _ := authRequest("POST", server.URL+"/api/claims", gatewayToken, map[string]any{
			"item_id": item.ID, "actor_id": 7, "display_name": "Alice", "quantity": "1",
		})
		doJSON(t, req, http.StatusOK, nil)
	}

	req, _ := authRequest("POST", server.URL+"/api/checkout/start", gatewayToken, map[string]any{"actor_id": 7})
	var start checkout.StartResult
	doJSON(t, req, http.StatusOK, &start)
	if start.CardsSubtotal != "12.50" {
		t.Errorf("expected subtotal 12.50, got %s", start.CardsSubtotal)
	}

	req, _ = authRequest("POST", server.URL+"/api/checkout/delivery", gatewayToken, map[string]any{
		"actor_id": 7, "method": "tracked",
	})
	var delivery map[string]any
	doJSON(t, req, http.StatusOK, &delivery)
	if delivery["delivery_fee"] != "3.50" {
		t.Errorf("expected fee 3.50, got %v", delivery["delivery_fee"])
	}

	req, _ = authRequest("POST", server.URL+"/api/checkout/confirm", gatewayToken, map[string]any{
		"actor_id": 7, "buyer_name": "Alice",
	})
	var order model.Order
	doJSON(t, req, http.StatusCreated, &order)
	if order.Total.Display() != "16.00" {
		t.Errorf("expected total 16.00, got %s", order.Total.Display())
	}
	if order.InvoiceNo == "" {
		t.Fatal("expected an invoice number")
	}

	req, _ = authRequest("POST", server.URL+"/api/checkout/payment", gatewayToken, map[string]any{
		"actor_id": 7, "proof_ref": "file-1", "proof_kind": "screenshot",
	})
	doJSON(t, req, http.StatusOK, nil)

	// Admin approves; tracked orders wait for an address.
	req, _ = authRequest("POST", server.URL+"/api/orders/"+order.InvoiceNo+"/review", adminToken, map[string]any{
		"approve": true,
	})
	var reviewed model.Order
	doJSON(t, req, http.StatusOK, &reviewed)
	if reviewed.Status != model.OrderStatusAwaitingAddress {
		t.Errorf("expected awaiting_address, got %s", reviewed.Status)
	}

	addrText := "Name : Alice\nStreet Name : 1 Main St\nUnit Number : #01-01\nPostal Code : 123456\nPhone Number : 91234567"
	req, _ = authRequest("POST", server.URL+"/api/checkout/address", gatewayToken, map[string]any{
		"actor_id": 7, "text": addrText,
	})
	doJSON(t, req, http.StatusOK, nil)

	req, _ = authRequest("POST", server.URL+"/api/orders/"+order.InvoiceNo+"/packed", adminToken, nil)
	doJSON(t, req, http.StatusOK, nil)

	// Ship with a noisy tracking string; normalization happens server-side.
	req, _ = authRequest("POST", server.URL+"/api/orders/"+order.InvoiceNo+"/ship", adminToken, map[string]any{
		"tracking": "label text RB 1234S6789 SG more text",
	})
	var shipped map[string]string
	doJSON(t, req, http.StatusOK, &shipped)
	if shipped["tracking"] != "RB123456789SG" {
		t.Errorf("expected normalized tracking, got %q", shipped["tracking"])
	}

	// The buyer's document shows the final state.
	req, _ = authRequest("GET", server.URL+"/api/orders/"+order.InvoiceNo+"/document?actor_id=7", gatewayToken, nil)
	var doc store.Document
	doJSON(t, req, http.StatusOK, &doc)
	if doc.Total != "16.00" || doc.Address == nil {
		t.Errorf("document: %+v", doc)
	}

	// Another buyer cannot read it.
	req, _ = authRequest("GET", server.URL+"/api/orders/"+order.InvoiceNo+"/document?actor_id=8", gatewayToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for other buyer, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
