package models

import "time"

// Installation binds a Tenant to the host platform. The access token is
// stored encrypted; ShopID is the platform's numeric shop id used to
// correlate webhook deliveries that do not carry the shop domain.
//
// Installations are deactivated on uninstall, never deleted, so a
// re-install can rotate the credential on the same row.
type Installation struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantID        uint       `gorm:"uniqueIndex;not null" json:"tenant_id"`
	ShopID          int64      `gorm:"index;not null;default:0" json:"shop_id"`
	AccessTokenEnc  string     `gorm:"type:text" json:"-"`
	Scopes          string     `gorm:"type:varchar(500)" json:"scopes"`
	Active          bool       `gorm:"not null;default:true;index" json:"active"`
	InstalledAt     time.Time  `gorm:"type:timestamp;not null" json:"installed_at"`
	UninstalledAt   *time.Time `gorm:"type:timestamp;default:null" json:"uninstalled_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
