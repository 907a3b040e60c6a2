package processor

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Event topics the webhook pipeline understands.
const (
	TopicPaymentFailed         = "invoice.payment_failed"
	TopicPaymentSucceeded      = "invoice.payment_succeeded"
	TopicSubscriptionCancelled = "customer.subscription.deleted"
)

// Event is the normalized shape of a processor webhook payload.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Customer string
	SubID    string
	Status   string
	// TenantID is carried in checkout metadata so the first event for a
	// new subscription can be correlated before we know the sub id.
	TenantID uint
}

type rawEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID           string `json:"id"`
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
			Status       string `json:"status"`
			Metadata     struct {
				TenantID string `json:"tenant_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body. The customer reference
// correlates the event to a tenant and Created orders it.
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return nil, errors.New("processor event missing id or type")
	}

	ev := &Event{
		ID:       raw.ID,
		Type:     raw.Type,
		Created:  raw.Created,
		Customer: raw.Data.Object.Customer,
		Status:   raw.Data.Object.Status,
	}
	if id, err := strconv.ParseUint(raw.Data.Object.Metadata.TenantID, 10, 32); err == nil {
		ev.TenantID = uint(id)
	}
	// Invoice events reference their subscription; subscription events are
	// the object itself.
	if raw.Data.Object.Subscription != "" {
		ev.SubID = raw.Data.Object.Subscription
	} else if raw.Type == TopicSubscriptionCancelled {
		ev.SubID = raw.Data.Object.ID
	}
	return ev, nil
}
