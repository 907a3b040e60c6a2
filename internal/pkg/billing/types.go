package billing

import (
	"errors"
	"time"
)

var (
	// ErrChargeAlreadyPending is returned when a tenant already has an
	// unresolved charge. The unique index on the pending key enforces this
	// in the database, so concurrent creators race safely.
	ErrChargeAlreadyPending = errors.New("billing: tenant already has a pending charge")
	ErrChargeNotFound       = errors.New("billing: charge not found")
	ErrNoInstallation       = errors.New("billing: tenant has no active installation")
	ErrUnknownBillingPath   = errors.New("billing: unknown billing path")
)

// DefaultPlanAmountCents is the monthly price charged when the caller does
// not pick a plan explicitly.
const DefaultPlanAmountCents = 1900

// StaleChargeAge is how long a charge may stay pending before the
// reconciler polls the upstream system for its real outcome.
const StaleChargeAge = 30 * time.Minute

// CreateChargeInput describes a new subscription charge for a tenant.
type CreateChargeInput struct {
	TenantID    uint
	BillingPath string
	AmountCents int64
	Currency    string
	PlanName    string
	// ReturnURL is where the merchant lands after approving or declining
	// the charge in the upstream UI.
	ReturnURL string
}
