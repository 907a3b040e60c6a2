package entitlement

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transact(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) Get(tenantID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.db.Where("tenant_id = ?", tenantID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) GetForUpdate(tenantID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) Save(e *models.Entitlement) error {
	return r.db.Save(e).Error
}

func (r *gormRepository) Create(e *models.Entitlement) error {
	return r.db.Create(e).Error
}

func (r *gormRepository) DeactivateInstallation(tenantID uint, at time.Time) error {
	return r.db.Model(&models.Installation{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Updates(map[string]interface{}{
			"active":         false,
			"uninstalled_at": at,
		}).Error
}
