package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tenant is one installed storefront. The shop domain is the stable external
// identifier used to correlate OAuth callbacks and webhooks.
type Tenant struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ShopDomain  string         `gorm:"uniqueIndex;type:varchar(191);not null" json:"shop_domain"`
	DisplayName string         `gorm:"type:varchar(200)" json:"display_name"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Installation *Installation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Entitlement  *Entitlement  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// NormalizeShopDomain lowercases and trims a shop domain for lookups.
func NormalizeShopDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
