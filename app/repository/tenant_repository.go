package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a tenant repository backed by GORM.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) GetByShopDomain(domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.Where("shop_domain = ?", models.NormalizeShopDomain(domain)).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) GetByShopID(shopID int64) (*models.Tenant, error) {
	var inst models.Installation
	if err := r.db.Where("shop_id = ?", shopID).First(&inst).Error; err != nil {
		return nil, err
	}
	return r.GetByID(inst.TenantID)
}

func (r *tenantRepository) GetInstallation(tenantID uint) (*models.Installation, error) {
	var inst models.Installation
	err := r.db.Where("tenant_id = ?", tenantID).First(&inst).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *tenantRepository) UpsertWithInstallation(tenant *models.Tenant, inst *models.Installation) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		tenant.ShopDomain = models.NormalizeShopDomain(tenant.ShopDomain)

		var existing models.Tenant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("shop_domain = ?", tenant.ShopDomain).
			First(&existing).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			if err := tx.Create(tenant).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			existing.DisplayName = tenant.DisplayName
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			*tenant = existing
		}

		inst.TenantID = tenant.ID
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"shop_id",
				"access_token_enc",
				"scopes",
				"active",
				"installed_at",
				"uninstalled_at",
				"updated_at",
			}),
		}).Create(inst).Error
	})
}

func (r *tenantRepository) EraseTenantData(tenantID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.Charge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.Entitlement{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.Installation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.User{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tenant{}, tenantID).Error
	})
}
