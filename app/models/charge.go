package models

import "time"

const (
	ChargeStatusPending  = "pending"
	ChargeStatusAccepted = "accepted"
	ChargeStatusDeclined = "declined"
)

// Charge is one recurring-billing attempt. PendingKey equals TenantID while
// the charge is pending and is cleared to NULL on resolution; together with
// the unique index this enforces at most one pending charge per tenant at
// the database, closing the double-subscribe race without read-then-write.
type Charge struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TenantID         uint       `gorm:"index;not null" json:"tenant_id"`
	PendingKey       *uint      `gorm:"uniqueIndex:ux_charges_pending_tenant;default:null" json:"-"`
	BillingPath      string     `gorm:"type:varchar(16);not null" json:"billing_path"`
	ExternalChargeID string     `gorm:"type:varchar(191);index;default:''" json:"external_charge_id"`
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`
	Currency         string     `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status           string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ConfirmationURL  string     `gorm:"type:text" json:"-"`
	ResolvedAt       *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the charge still awaits confirmation.
func (c *Charge) IsPending() bool {
	return c.Status == ChargeStatusPending
}
