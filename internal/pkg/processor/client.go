// Package processor talks to the external payment processor's API. The app
// only ever reads back subscription state it was told about via webhooks,
// so the surface is deliberately small.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.processor.example.com/v1"

var ErrRejected = errors.New("processor rejected the request")

type Client struct {
	APIKey     string
	APIBaseURL string
	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("PROCESSOR_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("PROCESSOR_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Subscription is the subset of processor subscription state the app uses.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// GetSubscription re-checks a subscription's status. Used by charge
// reconciliation when the confirmation webhook never arrived.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c.APIKey == "" {
		return nil, errors.New("PROCESSOR_API_KEY is not configured")
	}

	u := strings.TrimRight(c.APIBaseURL, "/") + "/subscriptions/" + strings.TrimSpace(subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status=%d", ErrRejected, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor call failed: status=%d", resp.StatusCode)
	}

	var out Subscription
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
