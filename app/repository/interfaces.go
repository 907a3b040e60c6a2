package repository

import (
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

// TenantRepository defines tenant and installation database operations.
type TenantRepository interface {
	GetByID(id uint) (*models.Tenant, error)
	GetByShopDomain(domain string) (*models.Tenant, error)
	GetByShopID(shopID int64) (*models.Tenant, error)
	GetInstallation(tenantID uint) (*models.Installation, error)
	// UpsertWithInstallation creates or updates the tenant and its
	// installation atomically, keyed by shop domain under a row lock, so a
	// re-install rotates the credential instead of duplicating rows.
	UpsertWithInstallation(tenant *models.Tenant, inst *models.Installation) error
	// EraseTenantData removes tenant-owned records for compliance redaction.
	EraseTenantData(tenantID uint) error
}

// UserRepository defines operator account database operations.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	ListByTenant(tenantID uint) ([]models.User, error)
	TouchLastLogin(id uint, at time.Time) error
}
