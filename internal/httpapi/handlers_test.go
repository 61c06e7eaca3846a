package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"royalbakes/backend/internal/connectivity"
	"royalbakes/backend/internal/domain"
	"royalbakes/backend/internal/localstore"
	memremote "royalbakes/backend/internal/remote/memory"
	"royalbakes/backend/internal/repo"
	"royalbakes/backend/internal/service"
	"royalbakes/backend/internal/syncer"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	local := localstore.NewMemoryStore()
	remoteStore := memremote.New()
	monitor := connectivity.NewMonitor(nil, time.Second)
	engine, err := syncer.New(context.Background(), local, remoteStore, monitor)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	monitor.SetOnline(true)

	repos := repo.New(engine, local, remoteStore)
	svc := service.New(repos, engine, remoteStore, local)

	auth := NewAuthManager(testSecret, time.Hour)
	api := New(svc, auth, "*", 5)

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	resp := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var out domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("login returned an empty token")
	}
	return out.AccessToken
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, payload any) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/api/v1/products", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/products", "not-a-real-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCashierCannotModifyProducts(t *testing.T) {
	server := newTestServer(t)
	admin := login(t, server, "admin", "admin123")
	cashier := login(t, server, "cashier", "cashier123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", admin, domain.AddStockRequest{
		Name: "Bread", Price: 1000, Quantity: domain.Limited(20),
	})
	var created struct {
		Product domain.Product `json:"product"`
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add product: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	resp = doJSON(t, server, http.MethodDelete, "/api/v1/products/"+created.Product.ID, cashier, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier delete, got %d", resp.StatusCode)
	}
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	admin := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", admin, domain.AddStockRequest{
		Name: "Croissant", Price: 1500, Quantity: domain.Limited(10),
	})
	var created struct {
		Product domain.Product `json:"product"`
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add product: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	// Checkout before a shift is open is a workflow conflict.
	resp = doJSON(t, server, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: created.Product.ID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without a shift, got %d", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/shifts/open", token, domain.OpenShiftRequest{
		Cashier: "Ama", StartingCash: 5000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift: status %d", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: created.Product.ID, Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: status %d", resp.StatusCode)
	}
	var sold struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, resp, &sold)
	if sold.Sale.Total != 3000 {
		t.Fatalf("expected total 3000, got %v", sold.Sale.Total)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/refunds", token, domain.RefundRequest{SaleID: sold.Sale.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refund: status %d", resp.StatusCode)
	}
	var refunded struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, resp, &refunded)
	if !refunded.Sale.Refunded {
		t.Fatalf("refund did not mark the sale: %+v", refunded.Sale)
	}

	// Refunding again is rejected as a conflict.
	resp = doJSON(t, server, http.MethodPost, "/api/v1/refunds", token, domain.RefundRequest{SaleID: sold.Sale.ID})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for a second refund, got %d", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/shifts/close", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close shift: status %d", resp.StatusCode)
	}
	var closed struct {
		Summary domain.ShiftSummary `json:"summary"`
	}
	decodeBody(t, resp, &closed)
	if closed.Summary.SaleCount != 1 || closed.Summary.RefundCount != 1 {
		t.Fatalf("unexpected summary counts: %+v", closed.Summary)
	}
}

func TestValidationErrorsReturn400(t *testing.T) {
	server := newTestServer(t)
	admin := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", admin, domain.AddStockRequest{
		Name: "", Price: 1000, Quantity: domain.Limited(5),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty name, got %d", resp.StatusCode)
	}

	// Unknown fields in the body are rejected too.
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/products", bytes.NewBufferString(`{"name":"Bread","price":1,"quantity":1,"surprise":true}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = server.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", resp.StatusCode)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/sync/status", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status: %d", resp.StatusCode)
	}
	var status service.SyncStatus
	decodeBody(t, resp, &status)
	if !status.Online {
		t.Fatal("expected online status")
	}
	if len(status.Pending) != 0 || len(status.Dropped) != 0 {
		t.Fatalf("expected an empty queue, got %+v", status)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	var body struct {
		OK     bool `json:"ok"`
		Online bool `json:"online"`
	}
	decodeBody(t, resp, &body)
	if !body.OK || !body.Online {
		t.Fatalf("unexpected health body: %+v", body)
	}
}
