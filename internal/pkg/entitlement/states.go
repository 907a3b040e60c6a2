package entitlement

import (
	"fmt"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

// Event is a billing-lifecycle trigger applied to an Entitlement.
type Event string

const (
	EventChargeConfirmed       Event = "charge_confirmed"
	EventPaymentFailed         Event = "payment_failed"
	EventSubscriptionCancelled Event = "subscription_cancelled"
	EventAppUninstalled        Event = "app_uninstalled"
)

type transitionKey struct {
	from  string
	event Event
}

// transitions is the explicit table of every valid state change. Anything
// not listed is an invalid transition and is rejected loudly rather than
// silently ignored.
var transitions = map[transitionKey]string{
	{models.EntitlementTrialing, EventChargeConfirmed}: models.EntitlementActive,
	{models.EntitlementPastDue, EventChargeConfirmed}:  models.EntitlementActive,

	{models.EntitlementActive, EventPaymentFailed}: models.EntitlementPastDue,

	{models.EntitlementTrialing, EventSubscriptionCancelled}: models.EntitlementCancelled,
	{models.EntitlementActive, EventSubscriptionCancelled}:   models.EntitlementCancelled,
	{models.EntitlementPastDue, EventSubscriptionCancelled}:  models.EntitlementCancelled,

	{models.EntitlementTrialing, EventAppUninstalled}:    models.EntitlementUninstalled,
	{models.EntitlementActive, EventAppUninstalled}:      models.EntitlementUninstalled,
	{models.EntitlementPastDue, EventAppUninstalled}:     models.EntitlementUninstalled,
	{models.EntitlementCancelled, EventAppUninstalled}:   models.EntitlementUninstalled,
	{models.EntitlementUninstalled, EventAppUninstalled}: models.EntitlementUninstalled,
}

var allStates = []string{
	models.EntitlementTrialing,
	models.EntitlementActive,
	models.EntitlementPastDue,
	models.EntitlementCancelled,
	models.EntitlementUninstalled,
}

var allEvents = []Event{
	EventChargeConfirmed,
	EventPaymentFailed,
	EventSubscriptionCancelled,
	EventAppUninstalled,
}

// Next returns the target state for (current, event), or false when the
// transition is not in the table.
func Next(current string, event Event) (string, bool) {
	next, ok := transitions[transitionKey{current, event}]
	return next, ok
}

// ValidateTable sanity-checks the transition table: every entry references
// known states, and uninstall is applicable from every state.
func ValidateTable() error {
	known := make(map[string]struct{}, len(allStates))
	for _, s := range allStates {
		known[s] = struct{}{}
	}
	for key, next := range transitions {
		if _, ok := known[key.from]; !ok {
			return fmt.Errorf("transition from unknown state %q", key.from)
		}
		if _, ok := known[next]; !ok {
			return fmt.Errorf("transition to unknown state %q", next)
		}
	}
	for _, s := range allStates {
		if _, ok := Next(s, EventAppUninstalled); !ok {
			return fmt.Errorf("uninstall not applicable from state %q", s)
		}
	}
	return nil
}

// IsAuthorized reports whether a tenant in this entitlement state may use
// the product: Active, or Trialing with trial time remaining.
func IsAuthorized(e *models.Entitlement, now time.Time) bool {
	if e == nil {
		return false
	}
	switch e.State {
	case models.EntitlementActive:
		return true
	case models.EntitlementTrialing:
		return now.Before(e.TrialEndsAt)
	default:
		return false
	}
}
