package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

// TrialDuration is granted on every fresh installation.
const TrialDuration = 7 * 24 * time.Hour

var (
	// ErrInvalidTransition marks an event that is not applicable from the
	// current state. Unlike a stale event this is a programming or data
	// error and is surfaced.
	ErrInvalidTransition = errors.New("invalid entitlement transition")
	ErrNotFound          = errors.New("entitlement not found")
)

// Repository provides the DB operations the engine needs. Implementations
// must make Transact atomic and GetForUpdate take a row lock so concurrent
// transitions for the same tenant serialize.
type Repository interface {
	Transact(fn func(tx Repository) error) error
	Get(tenantID uint) (*models.Entitlement, error)
	GetForUpdate(tenantID uint) (*models.Entitlement, error)
	Save(e *models.Entitlement) error
	Create(e *models.Entitlement) error
	DeactivateInstallation(tenantID uint, at time.Time) error
}

// TransitionInput carries one event application. Version orders events from
// external sources; zero means the event is locally ordered and follows the
// stored version.
type TransitionInput struct {
	Event                  Event
	Version                int64
	BillingPath            string
	ExternalSubscriptionID string
	Now                    time.Time
}

// Engine drives the entitlement state machine.
type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Transition applies one event under the tenant's row lock. Events older
// than the stored version are dropped: applied=false with no error, the
// idempotent-replay contract. Side effects that belong to the transition
// (deactivating the installation on uninstall) commit in the same
// transaction.
func (en *Engine) Transition(ctx context.Context, tenantID uint, in TransitionInput) (ent *models.Entitlement, applied bool, err error) {
	_ = ctx
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	err = en.repo.Transact(func(tx Repository) error {
		current, err := tx.GetForUpdate(tenantID)
		if err != nil {
			return err
		}

		if in.Version > 0 && in.Version < current.Version {
			// Out-of-order delivery; a newer event already won.
			ent = current
			return nil
		}

		next, ok := Next(current.State, in.Event)
		if !ok {
			ent = current
			return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, in.Event, current.State)
		}

		current.State = next
		if in.Version > 0 {
			current.Version = in.Version
		} else {
			current.Version++
		}
		current.LastTransitionAt = now
		if in.BillingPath != "" {
			current.BillingPath = in.BillingPath
		}
		if in.ExternalSubscriptionID != "" {
			current.ExternalSubscriptionID = in.ExternalSubscriptionID
		}

		if err := tx.Save(current); err != nil {
			return err
		}

		if in.Event == EventAppUninstalled {
			if err := tx.DeactivateInstallation(tenantID, now); err != nil {
				return err
			}
		}

		ent = current
		applied = true
		return nil
	})
	return ent, applied, err
}

// StartTrial ensures the tenant has a live entitlement after an install.
// A missing row or a terminal state becomes a fresh trial; a live state is
// left untouched (re-auth of an installed shop must not reset anything).
func (en *Engine) StartTrial(ctx context.Context, tenantID uint, now time.Time) (*models.Entitlement, error) {
	_ = ctx
	if now.IsZero() {
		now = time.Now()
	}

	var ent *models.Entitlement
	err := en.repo.Transact(func(tx Repository) error {
		current, err := tx.GetForUpdate(tenantID)
		if errors.Is(err, ErrNotFound) {
			ent = &models.Entitlement{
				TenantID:         tenantID,
				State:            models.EntitlementTrialing,
				TrialEndsAt:      now.Add(TrialDuration),
				BillingPath:      models.BillingPathNone,
				Version:          1,
				LastTransitionAt: now,
			}
			return tx.Create(ent)
		}
		if err != nil {
			return err
		}

		if current.IsTerminal() {
			current.State = models.EntitlementTrialing
			current.TrialEndsAt = now.Add(TrialDuration)
			current.BillingPath = models.BillingPathNone
			current.ExternalSubscriptionID = ""
			current.Version++
			current.LastTransitionAt = now
			if err := tx.Save(current); err != nil {
				return err
			}
		}
		ent = current
		return nil
	})
	return ent, err
}

// Authorized loads the tenant's entitlement and evaluates it.
func (en *Engine) Authorized(ctx context.Context, tenantID uint, now time.Time) (bool, error) {
	_ = ctx
	ent, err := en.repo.Get(tenantID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	return IsAuthorized(ent, now), nil
}
