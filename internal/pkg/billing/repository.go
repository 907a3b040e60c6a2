package billing

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
)

// Repository is the persistence surface the charge manager needs. A GORM
// implementation backs production; tests substitute an in-memory fake.
type Repository interface {
	// Transact runs fn inside a transaction and passes a Repository bound
	// to that transaction.
	Transact(fn func(tx Repository) error) error
	// CreatePending inserts a new pending charge. It returns
	// ErrChargeAlreadyPending when the tenant's pending slot is taken.
	CreatePending(ch *models.Charge) error
	GetByID(id uint) (*models.Charge, error)
	// GetForUpdate loads a charge with a row lock so concurrent
	// confirmations serialize on it.
	GetForUpdate(id uint) (*models.Charge, error)
	GetByExternalID(billingPath, externalID string) (*models.Charge, error)
	// GetPendingForUpdate loads the tenant's pending charge, if any, with a
	// row lock.
	GetPendingForUpdate(tenantID uint) (*models.Charge, error)
	Save(ch *models.Charge) error
	// ListStalePending returns pending charges created before cutoff.
	ListStalePending(cutoff time.Time) ([]models.Charge, error)
	// Entitlements returns an entitlement repository bound to the same
	// database handle, so charge resolution and the entitlement
	// transition commit together.
	Entitlements() entitlement.Repository
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transact(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreatePending(ch *models.Charge) error {
	ch.Status = models.ChargeStatusPending
	key := ch.TenantID
	ch.PendingKey = &key
	if err := r.db.Create(ch).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrChargeAlreadyPending
		}
		return err
	}
	return nil
}

func (r *gormRepository) GetByID(id uint) (*models.Charge, error) {
	var ch models.Charge
	if err := r.db.First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *gormRepository) GetForUpdate(id uint) (*models.Charge, error) {
	var ch models.Charge
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *gormRepository) GetByExternalID(billingPath, externalID string) (*models.Charge, error) {
	var ch models.Charge
	err := r.db.Where("billing_path = ? AND external_charge_id = ?", billingPath, externalID).
		Order("id DESC").First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *gormRepository) GetPendingForUpdate(tenantID uint) (*models.Charge, error) {
	var ch models.Charge
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND status = ?", tenantID, models.ChargeStatusPending).
		First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *gormRepository) Save(ch *models.Charge) error {
	return r.db.Save(ch).Error
}

func (r *gormRepository) ListStalePending(cutoff time.Time) ([]models.Charge, error) {
	var charges []models.Charge
	err := r.db.Where("status = ? AND created_at < ?", models.ChargeStatusPending, cutoff).
		Find(&charges).Error
	return charges, err
}

func (r *gormRepository) Entitlements() entitlement.Repository {
	return entitlement.NewRepository(r.db)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL error 1062 when the driver does not translate it.
	return strings.Contains(err.Error(), "Duplicate entry")
}
