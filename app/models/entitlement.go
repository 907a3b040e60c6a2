package models

import "time"

// Entitlement states. Cancelled and Uninstalled are terminal until a fresh
// install creates a new trial.
const (
	EntitlementTrialing    = "trialing"
	EntitlementActive      = "active"
	EntitlementPastDue     = "past_due"
	EntitlementCancelled   = "cancelled"
	EntitlementUninstalled = "uninstalled"
)

// Billing paths. A single Entitlement row is the source of truth regardless
// of which path last wrote to it.
const (
	BillingPathPlatform  = "platform"
	BillingPathProcessor = "processor"
	BillingPathNone      = "none"
)

// Entitlement is the tenant-level authorization state. Version is a
// monotonically increasing counter carried on incoming events; transitions
// with an older version are dropped so out-of-order webhook delivery cannot
// roll the state back.
type Entitlement struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	TenantID               uint      `gorm:"uniqueIndex;not null" json:"tenant_id"`
	State                  string    `gorm:"type:varchar(32);not null;default:'trialing';index" json:"state"`
	TrialEndsAt            time.Time `gorm:"type:timestamp;not null" json:"trial_ends_at"`
	BillingPath            string    `gorm:"type:varchar(16);not null;default:'none'" json:"billing_path"`
	ExternalSubscriptionID string    `gorm:"type:varchar(191);default:''" json:"external_subscription_id"`
	Version                int64     `gorm:"not null;default:0" json:"version"`
	LastTransitionAt       time.Time `gorm:"type:timestamp;not null" json:"last_transition_at"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the state only leaves via a fresh install.
func (e *Entitlement) IsTerminal() bool {
	return e.State == EntitlementCancelled || e.State == EntitlementUninstalled
}
