package repository

import (
	"gorm.io/gorm"
)

// Repositories bundles the repository instances handed to controllers.
type Repositories struct {
	Tenant TenantRepository
	User   UserRepository
}

// NewRepositories creates all repositories from one DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tenant: NewTenantRepository(db),
		User:   NewUserRepository(db),
	}
}
