package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// HandleHome is the public landing page. Authenticated operators go
// straight to the dashboard.
func HandleHome(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect("/dashboard", fiber.StatusSeeOther)
	}
	return c.Render("home", viewContext(c, fiber.Map{"Title": "EmployeeSuite"}))
}

// HandleDashboard renders the entitlement-gated product surface.
func HandleDashboard(c *fiber.Ctx) error {
	p := usercontext.GetPrincipal(c)
	return c.Render("dashboard", viewContext(c, fiber.Map{
		"Title":    "Dashboard",
		"TenantID": p.TenantID,
	}))
}
