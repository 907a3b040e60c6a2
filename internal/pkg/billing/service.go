package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/platform"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/processor"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/secretbox"
)

// PlatformCharges is the slice of the platform API the manager calls.
type PlatformCharges interface {
	CreateRecurringCharge(ctx context.Context, shopDomain, accessToken, name string, amountCents int64, returnURL string) (*platform.RecurringCharge, error)
	GetRecurringCharge(ctx context.Context, shopDomain, accessToken string, chargeID int64) (*platform.RecurringCharge, error)
}

// ProcessorSubscriptions is the slice of the processor API the manager calls.
type ProcessorSubscriptions interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*processor.Subscription, error)
}

// Notifier receives resolved charges after the transaction commits. It must
// not block; failures there never roll back the resolution.
type Notifier interface {
	ChargeResolved(tenantID uint, ch *models.Charge)
}

// Manager drives the charge lifecycle: open a pending charge, hand the
// merchant to the upstream confirmation UI, and resolve the outcome
// atomically with the entitlement transition.
type Manager struct {
	repo      Repository
	tenants   repository.TenantRepository
	box       *secretbox.Box
	platform  PlatformCharges
	processor ProcessorSubscriptions
	notifier  Notifier
}

func NewManager(repo Repository, tenants repository.TenantRepository, box *secretbox.Box, pc PlatformCharges, ps ProcessorSubscriptions) *Manager {
	return &Manager{repo: repo, tenants: tenants, box: box, platform: pc, processor: ps}
}

// SetNotifier wires post-commit notifications. Optional.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// CreateCharge opens a new pending charge for the tenant. The pending row is
// inserted before the upstream call so two concurrent subscribes collapse
// into one: the loser gets ErrChargeAlreadyPending from the unique index.
func (m *Manager) CreateCharge(ctx context.Context, in CreateChargeInput) (*models.Charge, error) {
	if in.AmountCents <= 0 {
		in.AmountCents = DefaultPlanAmountCents
	}
	if in.Currency == "" {
		in.Currency = "usd"
	}
	if in.PlanName == "" {
		in.PlanName = env.GetEnv("BILLING_PLAN_NAME", "EmployeeSuite Monthly")
	}
	if in.BillingPath != models.BillingPathPlatform && in.BillingPath != models.BillingPathProcessor {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBillingPath, in.BillingPath)
	}

	ch := &models.Charge{
		TenantID:    in.TenantID,
		BillingPath: in.BillingPath,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
	}
	if err := m.repo.CreatePending(ch); err != nil {
		return nil, err
	}

	switch in.BillingPath {
	case models.BillingPathPlatform:
		if err := m.openPlatformCharge(ctx, ch, in); err != nil {
			// The upstream call failed, so no merchant will ever confirm
			// this charge. Release the pending slot.
			m.abandonCharge(ch)
			return nil, err
		}
	case models.BillingPathProcessor:
		// The processor flow confirms via webhook after hosted checkout;
		// the external subscription id arrives with the first event.
		ch.ConfirmationURL = processorCheckoutURL(ch)
		if err := m.repo.Save(ch); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

func (m *Manager) openPlatformCharge(ctx context.Context, ch *models.Charge, in CreateChargeInput) error {
	shop, token, err := m.shopCredentials(ch.TenantID)
	if err != nil {
		return err
	}
	rc, err := m.platform.CreateRecurringCharge(ctx, shop, token, in.PlanName, in.AmountCents, in.ReturnURL)
	if err != nil {
		return err
	}
	ch.ExternalChargeID = strconv.FormatInt(rc.ID, 10)
	ch.ConfirmationURL = rc.ConfirmationURL
	return m.repo.Save(ch)
}

// ConfirmCharge resolves a pending charge under its row lock. A charge that
// is no longer pending is returned unchanged, so duplicate confirmation
// callbacks are no-ops. On acceptance the entitlement transition commits in
// the same transaction as the charge update.
func (m *Manager) ConfirmCharge(ctx context.Context, chargeID uint, externalStatus string, now time.Time) (*models.Charge, error) {
	var result *models.Charge
	var resolvedNow bool
	err := m.repo.Transact(func(tx Repository) error {
		ch, err := tx.GetForUpdate(chargeID)
		if err != nil {
			return err
		}
		resolvedNow, err = m.resolveLocked(ctx, tx, ch, externalStatus, now, &result)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resolvedNow {
		m.notifyResolved(result)
	}
	return result, nil
}

// ConfirmPendingForTenant resolves the tenant's pending charge, stamping the
// external subscription id the upstream event carried. Used by the processor
// webhook path, where events identify the subscription rather than our
// charge id. No pending charge is not an error: the event may be a renewal
// for an already-active subscription.
func (m *Manager) ConfirmPendingForTenant(ctx context.Context, tenantID uint, externalID, externalStatus string, now time.Time) (*models.Charge, error) {
	var result *models.Charge
	var resolvedNow bool
	err := m.repo.Transact(func(tx Repository) error {
		ch, err := tx.GetPendingForUpdate(tenantID)
		if err == ErrChargeNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if externalID != "" {
			ch.ExternalChargeID = externalID
		}
		resolvedNow, err = m.resolveLocked(ctx, tx, ch, externalStatus, now, &result)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resolvedNow {
		m.notifyResolved(result)
	}
	return result, nil
}

// resolveLocked applies the external outcome to a locked charge. The caller
// holds the row lock and the enclosing transaction. The bool reports whether
// this call performed the resolution; a charge another caller already
// resolved returns false so only the resolving call notifies.
func (m *Manager) resolveLocked(ctx context.Context, tx Repository, ch *models.Charge, externalStatus string, now time.Time, result **models.Charge) (bool, error) {
	if !ch.IsPending() {
		c := *ch
		*result = &c
		return false, nil
	}

	outcome := outcomeFromStatus(externalStatus)
	if outcome == models.ChargeStatusPending {
		c := *ch
		*result = &c
		return false, nil
	}

	ch.Status = outcome
	ch.PendingKey = nil
	resolved := now
	ch.ResolvedAt = &resolved
	if err := tx.Save(ch); err != nil {
		return false, err
	}

	if outcome == models.ChargeStatusAccepted {
		engine := entitlement.NewEngine(tx.Entitlements())
		_, _, err := engine.Transition(ctx, ch.TenantID, entitlement.TransitionInput{
			Event:                  entitlement.EventChargeConfirmed,
			BillingPath:            ch.BillingPath,
			ExternalSubscriptionID: ch.ExternalChargeID,
			Now:                    now,
		})
		if err != nil {
			return false, err
		}
	}

	c := *ch
	*result = &c
	return true, nil
}

// PendingCharge returns the tenant's unresolved charge, or nil when the
// pending slot is free.
func (m *Manager) PendingCharge(tenantID uint) (*models.Charge, error) {
	var result *models.Charge
	err := m.repo.Transact(func(tx Repository) error {
		ch, err := tx.GetPendingForUpdate(tenantID)
		if err == ErrChargeNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		c := *ch
		result = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmFromReturnURL resolves a charge after the merchant lands back from
// the upstream confirmation UI. The outcome is never read from the request;
// the upstream system is polled for the real status. The charge must belong
// to the calling tenant.
func (m *Manager) ConfirmFromReturnURL(ctx context.Context, tenantID, chargeID uint, now time.Time) (*models.Charge, error) {
	ch, err := m.repo.GetByID(chargeID)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenantID {
		return nil, ErrChargeNotFound
	}
	if !ch.IsPending() {
		return ch, nil
	}
	status, err := m.pollUpstreamStatus(ctx, ch)
	if err != nil {
		return nil, err
	}
	return m.ConfirmCharge(ctx, ch.ID, status, now)
}

// ReconcileStaleCharges polls the upstream system for charges that stayed
// pending past StaleChargeAge, covering lost confirmation callbacks. It
// returns how many charges it resolved; per-charge failures are logged and
// skipped so one broken tenant cannot stall the sweep.
func (m *Manager) ReconcileStaleCharges(ctx context.Context, now time.Time) (int, error) {
	stale, err := m.repo.ListStalePending(now.Add(-StaleChargeAge))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stale {
		ch := &stale[i]
		status, err := m.pollUpstreamStatus(ctx, ch)
		if err != nil {
			log.Warnf("billing: reconcile charge %d: %v", ch.ID, err)
			continue
		}
		out, err := m.ConfirmCharge(ctx, ch.ID, status, now)
		if err != nil {
			log.Warnf("billing: reconcile charge %d: %v", ch.ID, err)
			continue
		}
		if !out.IsPending() {
			resolved++
		}
	}
	return resolved, nil
}

func (m *Manager) pollUpstreamStatus(ctx context.Context, ch *models.Charge) (string, error) {
	switch ch.BillingPath {
	case models.BillingPathPlatform:
		shop, token, err := m.shopCredentials(ch.TenantID)
		if err != nil {
			return "", err
		}
		extID, err := strconv.ParseInt(ch.ExternalChargeID, 10, 64)
		if err != nil {
			return "", fmt.Errorf("charge %d has no usable external id", ch.ID)
		}
		rc, err := m.platform.GetRecurringCharge(ctx, shop, token, extID)
		if err != nil {
			return "", err
		}
		return rc.Status, nil
	case models.BillingPathProcessor:
		if ch.ExternalChargeID == "" {
			// Checkout was never completed; expire the attempt.
			return "expired", nil
		}
		sub, err := m.processor.GetSubscription(ctx, ch.ExternalChargeID)
		if err != nil {
			return "", err
		}
		return sub.Status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBillingPath, ch.BillingPath)
}

func (m *Manager) shopCredentials(tenantID uint) (shopDomain, accessToken string, err error) {
	tenant, err := m.tenants.GetByID(tenantID)
	if err != nil {
		return "", "", err
	}
	inst, err := m.tenants.GetInstallation(tenantID)
	if err != nil || inst == nil || !inst.Active {
		return "", "", ErrNoInstallation
	}
	token, err := m.box.Open(inst.AccessTokenEnc)
	if err != nil {
		return "", "", fmt.Errorf("decrypt access token: %w", err)
	}
	return tenant.ShopDomain, token, nil
}

// abandonCharge releases the pending slot of a charge whose upstream
// creation failed. Best effort; the reconciler expires leftovers.
func (m *Manager) abandonCharge(ch *models.Charge) {
	ch.Status = models.ChargeStatusDeclined
	ch.PendingKey = nil
	now := time.Now()
	ch.ResolvedAt = &now
	if err := m.repo.Save(ch); err != nil {
		log.Errorf("billing: abandon charge %d: %v", ch.ID, err)
	}
}

func (m *Manager) notifyResolved(ch *models.Charge) {
	if m.notifier == nil || ch == nil || ch.IsPending() {
		return
	}
	m.notifier.ChargeResolved(ch.TenantID, ch)
}

// outcomeFromStatus maps upstream status words onto our charge states.
// Unrecognized statuses stay pending so the reconciler looks again later.
func outcomeFromStatus(status string) string {
	switch status {
	case "accepted", "active", "paid", "succeeded", "trialing":
		return models.ChargeStatusAccepted
	case "declined", "cancelled", "canceled", "expired", "frozen", "unpaid", "incomplete_expired":
		return models.ChargeStatusDeclined
	default:
		return models.ChargeStatusPending
	}
}

func processorCheckoutURL(ch *models.Charge) string {
	base := env.GetEnv("PROCESSOR_CHECKOUT_URL", "https://checkout.processor.example.com/subscribe")
	return fmt.Sprintf("%s?charge=%d", base, ch.ID)
}
