package apiv1

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// APIServer serves the embedded-client JSON surface. Authentication is
// enforced by the RequireAPIAuth middleware attached in the router.
type APIServer struct{}

func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers attaches the v1 routes to the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)
	r.Get("/me", s.GetMe)
	r.Get("/entitlement", s.GetEntitlement)
}

func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetMe returns the resolved principal for the calling request, letting the
// embedded frontend render its chrome without a second round trip.
func (s *APIServer) GetMe(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(usercontext.GetPrincipal(c))
}

// GetEntitlement returns the tenant's current subscription state. The
// embedded app polls this after sending the merchant through billing.
func (s *APIServer) GetEntitlement(c *fiber.Ctx) error {
	p := usercontext.GetPrincipal(c)
	if p.TenantID == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_tenant"})
	}

	ent, err := bootstrap.GetServices().Entitlements.Get(p.TenantID)
	if errors.Is(err, entitlement.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_entitlement"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"state":         ent.State,
		"billing_path":  ent.BillingPath,
		"trial_ends_at": ent.TrialEndsAt,
		"authorized":    entitlement.IsAuthorized(ent, time.Now()),
	})
}
