package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return &Client{
		APIKey:     "key",
		APISecret:  "secret",
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func TestExchangeCode_RetriesTransientOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"access_token":"shpat_abc","scope":"read_orders"}`))
	}))
	defer srv.Close()

	tok, err := testClient(srv.URL).ExchangeCode(context.Background(), "example.myshopify.com", "code123")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if tok.AccessToken != "shpat_abc" {
		t.Fatalf("access token = %q", tok.AccessToken)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestExchangeCode_RejectionNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ExchangeCode(context.Background(), "example.myshopify.com", "bad-code")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("authentication rejection must not be retried, got %d calls", calls)
	}
}

func TestRegisterWebhook_ExistingSubscriptionIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":{"address":["has already been taken"]}}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).RegisterWebhook(context.Background(), "example.myshopify.com", "tok", "app/uninstalled", "https://app.example.com/webhooks/shopify/app-uninstalled")
	if err != nil {
		t.Fatalf("expected 422 to be treated as success, got %v", err)
	}
}

func TestGetRecurringCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "tok" {
			t.Errorf("access token header = %q", got)
		}
		w.Write([]byte(`{"recurring_application_charge":{"id":88,"status":"active","confirmation_url":"https://x"}}`))
	}))
	defer srv.Close()

	ch, err := testClient(srv.URL).GetRecurringCharge(context.Background(), "example.myshopify.com", "tok", 88)
	if err != nil {
		t.Fatalf("GetRecurringCharge failed: %v", err)
	}
	if ch.ID != 88 || ch.Status != "active" {
		t.Fatalf("charge = %+v", ch)
	}
}

func TestAuthorizeURL(t *testing.T) {
	c := testClient("")
	u, err := c.AuthorizeURL("example.myshopify.com", "https://app.example.com/auth/callback", "state123")
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}
	want := "https://example.myshopify.com/admin/oauth/authorize"
	if len(u) < len(want) || u[:len(want)] != want {
		t.Fatalf("url = %q", u)
	}
}
