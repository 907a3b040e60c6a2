package controllers

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/authorizer"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
)

// HandleInstall starts the platform OAuth flow for a shop. Both fresh
// installs and expired embedded sessions land here; the signed state keeps
// the callback bound to this shop and surface.
func HandleInstall(c *fiber.Ctx) error {
	shop := c.Query("shop")
	embedded := c.Query("embedded") == "1" || c.Query("host") != ""

	authorizeURL, err := bootstrap.GetServices().Authorizer.BeginAuthorization(shop, embedded)
	if err != nil {
		if errors.Is(err, authorizer.ErrInvalidShopDomain) {
			return c.Status(fiber.StatusBadRequest).SendString("invalid shop domain")
		}
		log.Errorf("[Install] begin authorization for %s: %v", shop, err)
		return c.Status(fiber.StatusInternalServerError).SendString("authorization could not be started")
	}

	return c.Redirect(authorizeURL, fiber.StatusFound)
}

// HandleInstallCallback completes the OAuth flow: verify the callback,
// exchange the code, persist the tenant and start its trial.
func HandleInstallCallback(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("malformed callback")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	out, err := bootstrap.GetServices().Authorizer.CompleteAuthorization(ctx, query)
	if err != nil {
		switch {
		case errors.Is(err, authorizer.ErrStateExpired):
			// The merchant sat on the consent screen too long. Restart the
			// flow instead of failing the install.
			return c.Redirect("/auth/install?shop="+url.QueryEscape(query.Get("shop")), fiber.StatusSeeOther)
		case errors.Is(err, authorizer.ErrInvalidSignature), errors.Is(err, authorizer.ErrStateMismatch):
			return c.Status(fiber.StatusUnauthorized).SendString("callback verification failed")
		case errors.Is(err, authorizer.ErrInvalidShopDomain):
			return c.Status(fiber.StatusBadRequest).SendString("invalid shop domain")
		case errors.Is(err, authorizer.ErrExchangeFailed):
			log.Errorf("[Install] code exchange: %v", err)
			return c.Status(fiber.StatusBadGateway).SendString("token exchange failed")
		default:
			log.Errorf("[Install] complete authorization: %v", err)
			return c.Status(fiber.StatusInternalServerError).SendString("installation failed")
		}
	}

	log.Infof("[Install] shop %s authorized (fresh=%t embedded=%t)", out.Tenant.ShopDomain, out.FreshInstall, out.Embedded)

	if out.Embedded {
		// Send the merchant back into the platform admin where the app
		// runs inside the iframe.
		apiKey := env.GetEnv("SHOPIFY_API_KEY", "")
		return c.Redirect("https://"+out.Tenant.ShopDomain+"/admin/apps/"+apiKey, fiber.StatusFound)
	}
	return c.Redirect("/dashboard", fiber.StatusSeeOther)
}
