package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"receiptvault/pkg/extract"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// setupTestServer wires the full router against the local fallback store,
// so the whole HTTP surface is testable without any external service.
func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg = Config{
		JWTSecret: "test-secret",
		DataDir:   t.TempDir(),
		AppURL:    "http://localhost:3000",
	}
	jwtSecret = []byte(cfg.JWTSecret)
	extractor = extract.NewClient("")
	var err error
	dataStore, err = newStore(cfg)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	r := gin.New()
	setupRoutes(r)
	return r
}

func mustSignupLogin(t *testing.T, r *gin.Engine, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp := performRequest(r, http.MethodPost, "/signup", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	body, _ = json.Marshal(map[string]string{"email": email, "password": password})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func createReceipt(t *testing.T, r *gin.Engine, token string, fields map[string]any) map[string]any {
	t.Helper()
	body, _ := json.Marshal(fields)
	resp := performRequest(r, http.MethodPost, "/receipts", bytes.NewBuffer(body), token, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create receipt failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	return out
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	token := mustSignupLogin(t, r, "user1@example.com", "pass123")

	// duplicate signup is a conflict
	dup, _ := json.Marshal(map[string]string{"email": "user1@example.com", "password": "pass123"})
	resp := performRequest(r, http.MethodPost, "/signup", bytes.NewBuffer(dup), "", "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup got %d", resp.Code)
	}

	// profile
	resp = performRequest(r, http.MethodGet, "/me", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("me failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var me map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &me)
	if me["subscription_tier"] != "free" {
		t.Fatalf("expected free tier got %v", me["subscription_tier"])
	}

	// create + list round-trip
	created := createReceipt(t, r, token, map[string]any{
		"vendor": "Acme", "date": "2024-01-01", "amount": 12.5, "currency": "USD", "category": "Office",
	})
	if created["id"] == "" || created["created_at"] == nil {
		t.Fatalf("created receipt missing id/created_at: %+v", created)
	}
	resp = performRequest(r, http.MethodGet, "/receipts", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("list failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var listed []map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 receipt got %d", len(listed))
	}
	got := listed[0]
	if got["vendor"] != "Acme" || got["date"] != "2024-01-01" || got["amount"] != 12.5 ||
		got["currency"] != "USD" || got["category"] != "Office" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	// update own receipt
	id, _ := created["id"].(string)
	upd, _ := json.Marshal(map[string]any{"vendor": "Acme Corp"})
	resp = performRequest(r, http.MethodPut, "/receipts/"+id, bytes.NewBuffer(upd), token, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("update failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// fill the free quota, then hit the wall
	for i := 0; i < 4; i++ {
		createReceipt(t, r, token, map[string]any{"vendor": fmt.Sprintf("v%d", i)})
	}
	over, _ := json.Marshal(map[string]any{"vendor": "one too many"})
	resp = performRequest(r, http.MethodPost, "/receipts", bytes.NewBuffer(over), token, "application/json")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 at quota got %d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/receipts", nil, token, "")
	listed = nil
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed) != 5 {
		t.Fatalf("expected quota to hold at 5 receipts got %d", len(listed))
	}

	// another user cannot touch user1's receipt, and learns nothing from trying
	tokenB := mustSignupLogin(t, r, "user2@example.com", "pass123")
	resp = performRequest(r, http.MethodPut, "/receipts/"+id, bytes.NewBuffer(upd), tokenB, "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign update got %d", resp.Code)
	}
	resp = performRequest(r, http.MethodDelete, "/receipts/"+id, nil, tokenB, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete got %d", resp.Code)
	}

	// owner can delete
	resp = performRequest(r, http.MethodDelete, "/receipts/"+id, nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// extraction endpoint (no API key: stand-in fields)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "receipt.jpg")
	_, _ = w.Write([]byte("not really a jpeg"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/receipts/extract", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusOK {
		t.Fatalf("extract failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var fields map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &fields)
	if fields["currency"] != "USD" || fields["vendor"] == "" {
		t.Fatalf("unexpected extraction fields: %+v", fields)
	}

	// CSV email export
	resp = performRequest(r, http.MethodPost, "/receipts/email", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("email export failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var mail map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &mail)
	if link, _ := mail["mailtoLink"].(string); link == "" {
		t.Fatalf("missing mailto link: %+v", mail)
	}

	// demo checkout when stripe is unconfigured
	resp = performRequest(r, http.MethodPost, "/stripe/create-checkout-session", bytes.NewBufferString("{}"), token, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("checkout failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// cancel-subscription resets tier and counter
	resp = performRequest(r, http.MethodPost, "/stripe/cancel-subscription", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/me", nil, token, "")
	me = nil
	_ = json.Unmarshal(resp.Body.Bytes(), &me)
	if me["subscription_tier"] != "free" || me["receipts_this_month"] != float64(0) {
		t.Fatalf("cancel did not reset profile: %+v", me)
	}

	// unconfigured stripe webhook is acknowledged and ignored
	resp = performRequest(r, http.MethodPost, "/webhooks/stripe", bytes.NewBufferString("{}"), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("webhook failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// account deletion cascades and invalidates the login
	resp = performRequest(r, http.MethodDelete, "/account", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete account failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	login, _ := json.Marshal(map[string]string{"email": "user1@example.com", "password": "pass123"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(login), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after account deletion got %d", resp.Code)
	}

	// user2 untouched by user1's deletion
	resp = performRequest(r, http.MethodGet, "/me", nil, tokenB, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("user2 should survive user1 deletion, got %d", resp.Code)
	}

	// unauthorized access to a protected endpoint is 401
	unauth := performRequest(r, http.MethodGet, "/receipts", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list got %d", unauth.Code)
	}
}

func TestForgotPasswordNeverRevealsAccounts(t *testing.T) {
	r := setupTestServer(t)
	mustSignupLogin(t, r, "known@example.com", "pass123")

	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		body, _ := json.Marshal(map[string]string{"email": email})
		resp := performRequest(r, http.MethodPost, "/auth/forgot-password", bytes.NewBuffer(body), "", "application/json")
		if resp.Code != http.StatusOK {
			t.Fatalf("forgot-password for %s: status=%d", email, resp.Code)
		}
	}
}
