package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_InvoicePayment(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "invoice.payment_succeeded",
		"created": 1711111111,
		"data": {
			"object": {
				"id": "in_55",
				"customer": "cus_9",
				"subscription": "sub_42",
				"status": "paid",
				"metadata": {"tenant_id": "7"}
			}
		}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, TopicPaymentSucceeded, ev.Type)
	assert.Equal(t, int64(1711111111), ev.Created)
	assert.Equal(t, "cus_9", ev.Customer)
	assert.Equal(t, "sub_42", ev.SubID)
	assert.Equal(t, "paid", ev.Status)
	assert.Equal(t, uint(7), ev.TenantID)
}

func TestParseEvent_SubscriptionCancelledUsesObjectID(t *testing.T) {
	body := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.deleted",
		"created": 1711111200,
		"data": {
			"object": {
				"id": "sub_42",
				"customer": "cus_9",
				"status": "canceled"
			}
		}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "sub_42", ev.SubID)
	assert.Zero(t, ev.TenantID)
}

func TestParseEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing id", `{"type":"invoice.payment_failed"}`},
		{"missing type", `{"id":"evt_3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseEvent_NonNumericTenantMetadataIgnored(t *testing.T) {
	body := []byte(`{
		"id": "evt_4",
		"type": "invoice.payment_failed",
		"data": {
			"object": {
				"subscription": "sub_1",
				"metadata": {"tenant_id": "acme"}
			}
		}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Zero(t, ev.TenantID)
}
