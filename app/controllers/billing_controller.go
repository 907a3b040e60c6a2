package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/billing"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// HandleBillingPage shows the tenant's subscription state and, when a
// charge is pending, where to finish confirming it.
func HandleBillingPage(c *fiber.Ctx) error {
	p := usercontext.GetPrincipal(c)
	if p.TenantID == 0 {
		return c.Render("billing", viewContext(c, fiber.Map{
			"Title":    "Billing",
			"NoTenant": true,
		}))
	}

	svc := bootstrap.GetServices()
	var state string
	ent, err := svc.Entitlements.Get(p.TenantID)
	switch {
	case err == nil:
		state = ent.State
	case errors.Is(err, entitlement.ErrNotFound):
		state = ""
	default:
		log.Errorf("[Billing] load entitlement for tenant %d: %v", p.TenantID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("billing state unavailable")
	}

	pending, err := svc.Billing.PendingCharge(p.TenantID)
	if err != nil {
		log.Errorf("[Billing] load pending charge for tenant %d: %v", p.TenantID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("billing state unavailable")
	}

	data := fiber.Map{
		"Title":            "Billing",
		"EntitlementState": state,
		"TrialExpired":     ent != nil && ent.State == models.EntitlementTrialing && !entitlement.IsAuthorized(ent, time.Now()),
		"HasPending":       pending != nil,
	}
	if ent != nil {
		data["TrialEndsAt"] = ent.TrialEndsAt
	}
	if pending != nil {
		data["PendingConfirmationURL"] = pending.ConfirmationURL
	}
	return c.Render("billing", viewContext(c, data))
}

// HandleSubscribe opens a new subscription charge and sends the merchant to
// the upstream confirmation UI. A second subscribe while one is pending
// reuses the open charge instead of failing.
func HandleSubscribe(c *fiber.Ctx) error {
	p := usercontext.GetPrincipal(c)
	if p.TenantID == 0 {
		return flashError(c, "No workspace is linked to this account", "/billing")
	}

	path := c.FormValue("billing_path", models.BillingPathPlatform)
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	svc := bootstrap.GetServices()
	ch, err := svc.Billing.CreateCharge(ctx, billing.CreateChargeInput{
		TenantID:    p.TenantID,
		BillingPath: path,
		ReturnURL:   billingReturnURL(c),
	})
	if errors.Is(err, billing.ErrChargeAlreadyPending) {
		pending, perr := svc.Billing.PendingCharge(p.TenantID)
		if perr == nil && pending != nil && pending.ConfirmationURL != "" {
			return c.Redirect(pending.ConfirmationURL, fiber.StatusSeeOther)
		}
		return flashError(c, "A subscription charge is already awaiting confirmation", "/billing")
	}
	if errors.Is(err, billing.ErrUnknownBillingPath) {
		return flashError(c, "Unknown billing method", "/billing")
	}
	if err != nil {
		log.Errorf("[Billing] create charge for tenant %d: %v", p.TenantID, err)
		return flashError(c, "The charge could not be created, please try again", "/billing")
	}

	return c.Redirect(ch.ConfirmationURL, fiber.StatusSeeOther)
}

// HandleBillingConfirm is the return URL the merchant lands on after
// approving or declining the charge upstream. The real outcome comes from
// polling the upstream system, not from the query string.
func HandleBillingConfirm(c *fiber.Ctx) error {
	p := usercontext.GetPrincipal(c)
	if p.TenantID == 0 {
		return c.Redirect("/billing", fiber.StatusSeeOther)
	}

	chargeID, err := strconv.ParseUint(c.Query("charge_id"), 10, 64)
	if err != nil || chargeID == 0 {
		return flashError(c, "Missing charge reference", "/billing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ch, err := bootstrap.GetServices().Billing.ConfirmFromReturnURL(ctx, p.TenantID, uint(chargeID), time.Now())
	if errors.Is(err, billing.ErrChargeNotFound) {
		return flashError(c, "Unknown charge", "/billing")
	}
	if err != nil {
		log.Errorf("[Billing] confirm charge %d: %v", chargeID, err)
		return flashError(c, "The charge could not be confirmed yet, it will be retried", "/billing")
	}

	switch ch.Status {
	case models.ChargeStatusAccepted:
		return flashSuccess(c, "Subscription activated, welcome aboard", "/dashboard")
	case models.ChargeStatusDeclined:
		return flashError(c, "The charge was declined", "/billing")
	default:
		return flashError(c, "The charge is still awaiting confirmation upstream", "/billing")
	}
}

// billingReturnURL builds the absolute URL the upstream confirmation UI
// sends the merchant back to.
func billingReturnURL(c *fiber.Ctx) string {
	return c.BaseURL() + "/billing/confirm"
}
