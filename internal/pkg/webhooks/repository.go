package webhooks

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

var ErrTenantUnknown = errors.New("webhooks: no tenant for delivery")

// Repository is the dedup ledger plus the lookups the dispatcher needs.
type Repository interface {
	// CreateEventIfNotExists inserts the event unless (source, event_id)
	// already exists. It reports whether this call created the row and
	// returns the stored row either way.
	CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	// MarkProcessed stamps a successful processing run.
	MarkProcessed(id uint, at time.Time) error
	// MarkFailed records the error but leaves processed_at NULL, so a
	// redelivery of the same event gets another processing attempt.
	MarkFailed(id uint, processingError string) error
	// FindTenantBySubscription maps a processor subscription id onto the
	// tenant whose entitlement carries it.
	FindTenantBySubscription(externalSubscriptionID string) (uint, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("source = ? AND event_id = ?", event.Source, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkProcessed(id uint, at time.Time) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &at,
		"processing_error": "",
	}).Error
}

func (r *gormRepository) MarkFailed(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Update("processing_error", processingError).Error
}

func (r *gormRepository) FindTenantBySubscription(externalSubscriptionID string) (uint, error) {
	var ent models.Entitlement
	err := r.db.Where("external_subscription_id = ?", externalSubscriptionID).First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTenantUnknown
		}
		return 0, err
	}
	return ent.TenantID, nil
}
