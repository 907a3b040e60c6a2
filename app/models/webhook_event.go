package models

import "time"

// Webhook sources. Each source signs deliveries with its own secret and
// scheme.
const (
	WebhookSourceShopify   = "shopify"
	WebhookSourceProcessor = "processor"
)

// WebhookEvent is the durable dedup ledger for webhook deliveries. The
// (source, event_id) pair is unique; replayed deliveries hit the conflict
// and are acknowledged without reprocessing. Events are recorded before the
// owning Tenant may exist, so there is no foreign key to tenants.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Source          string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_source_event,unique,priority:1" json:"source"`
	EventID         string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_source_event,unique,priority:2" json:"event_id"`
	Topic           string     `gorm:"type:varchar(100);not null;index" json:"topic"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
