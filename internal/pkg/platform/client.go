// Package platform is the server-to-server client for the host commerce
// platform: OAuth code exchange, shop lookup, webhook registration and
// recurring application charges.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
)

// ErrRejected marks a definitive authentication rejection from the
// platform. Rejections are never retried.
var ErrRejected = errors.New("platform rejected the request")

type Client struct {
	APIKey    string
	APISecret string

	// BaseURL overrides the shop admin host, for tests.
	BaseURL    string
	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:    strings.TrimSpace(env.GetEnv("SHOPIFY_API_KEY", "")),
		APISecret: strings.TrimSpace(env.GetEnv("SHOPIFY_API_SECRET", "")),
		BaseURL:   strings.TrimSpace(env.GetEnv("SHOPIFY_API_BASE_URL", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) shopURL(shopDomain, path string) string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/") + path
	}
	return "https://" + shopDomain + path
}

// TokenResponse is the result of the authorization-code exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeCode swaps an authorization code for a durable access token.
// Transient network failures are retried once; a 4xx rejection is final.
func (c *Client) ExchangeCode(ctx context.Context, shopDomain, code string) (*TokenResponse, error) {
	if c.APIKey == "" || c.APISecret == "" {
		return nil, errors.New("SHOPIFY_API_KEY/SHOPIFY_API_SECRET are not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     c.APIKey,
		"client_secret": c.APISecret,
		"code":          strings.TrimSpace(code),
	})

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.postJSON(ctx, c.shopURL(shopDomain, "/admin/oauth/access_token"), "", body)
		if err != nil {
			// Transient transport failure; retry once.
			lastErr = err
			continue
		}
		if errors.Is(resp.err, ErrRejected) {
			return nil, resp.err
		}
		if resp.err != nil {
			lastErr = resp.err
			continue
		}

		var out TokenResponse
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, err
		}
		if strings.TrimSpace(out.AccessToken) == "" {
			return nil, errors.New("token exchange returned empty access_token")
		}
		return &out, nil
	}
	return nil, fmt.Errorf("token exchange failed: %w", lastErr)
}

// Shop is the subset of shop metadata the app stores.
type Shop struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"myshopify_domain"`
	Email  string `json:"email"`
}

// GetShop fetches basic account info for the installed shop.
func (c *Client) GetShop(ctx context.Context, shopDomain, accessToken string) (*Shop, error) {
	resp, err := c.getJSON(ctx, c.shopURL(shopDomain, "/admin/api/2024-01/shop.json"), accessToken)
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}

	var out struct {
		Shop Shop `json:"shop"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, err
	}
	return &out.Shop, nil
}

// RegisterWebhook subscribes the given topic to the callback address.
// Registration is idempotent on the platform side; a 422 for an existing
// subscription is treated as success.
func (c *Client) RegisterWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"webhook": map[string]string{
			"topic":   topic,
			"address": address,
			"format":  "json",
		},
	})

	resp, err := c.postJSON(ctx, c.shopURL(shopDomain, "/admin/api/2024-01/webhooks.json"), accessToken, body)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnprocessableEntity {
		// Already subscribed.
		return nil
	}
	return resp.err
}

// RecurringCharge mirrors the platform's recurring application charge.
type RecurringCharge struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	ConfirmationURL string `json:"confirmation_url"`
}

// CreateRecurringCharge opens a recurring application charge the merchant
// must confirm in the admin. The returned confirmation URL is where the
// merchant is redirected.
func (c *Client) CreateRecurringCharge(ctx context.Context, shopDomain, accessToken, name string, amountCents int64, returnURL string) (*RecurringCharge, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"recurring_application_charge": map[string]interface{}{
			"name":       name,
			"price":      fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
			"return_url": returnURL,
			"test":       env.IsDev(),
		},
	})

	resp, err := c.postJSON(ctx, c.shopURL(shopDomain, "/admin/api/2024-01/recurring_application_charges.json"), accessToken, body)
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}

	var out struct {
		Charge RecurringCharge `json:"recurring_application_charge"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, err
	}
	return &out.Charge, nil
}

// GetRecurringCharge re-checks the status of a previously created charge.
// Used by reconciliation when the confirmation callback never arrived.
func (c *Client) GetRecurringCharge(ctx context.Context, shopDomain, accessToken string, chargeID int64) (*RecurringCharge, error) {
	path := fmt.Sprintf("/admin/api/2024-01/recurring_application_charges/%d.json", chargeID)
	resp, err := c.getJSON(ctx, c.shopURL(shopDomain, path), accessToken)
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}

	var out struct {
		Charge RecurringCharge `json:"recurring_application_charge"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, err
	}
	return &out.Charge, nil
}

type response struct {
	status int
	body   []byte
	err    error
}

func (c *Client) postJSON(ctx context.Context, rawURL, accessToken string, body []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, accessToken)
}

func (c *Client) getJSON(ctx context.Context, rawURL, accessToken string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, accessToken)
}

func (c *Client) do(req *http.Request, accessToken string) (*response, error) {
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("X-Shopify-Access-Token", accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	out := &response{status: resp.StatusCode, body: body}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		out.err = fmt.Errorf("%w: status=%d", ErrRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		out.err = fmt.Errorf("platform call failed: status=%d url=%s", resp.StatusCode, sanitizeURL(req.URL))
	}
	return out, nil
}

func sanitizeURL(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}
