package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// requestTimeout bounds upstream calls made from a request handler.
const requestTimeout = 20 * time.Second

// viewContext assembles the fiber.Map every page render starts from:
// flash values plus the resolved principal for the navbar.
func viewContext(c *fiber.Ctx, extra fiber.Map) fiber.Map {
	p := usercontext.GetPrincipal(c)
	m := fiber.Map{
		"IsLoggedIn":       p.IsLoggedIn,
		"IsAdmin":          p.IsAdmin,
		"IsEmbedded":       p.Mode == usercontext.ModeEmbedded,
		"ShopDomain":       p.ShopDomain,
		"Entitled":         p.Entitled,
		"EntitlementState": p.EntitlementState,
	}
	if tok := c.Locals("csrf"); tok != nil {
		m["csrf"] = tok
	}
	for k, v := range flash.Get(c) {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func flashError(c *fiber.Ctx, message, target string) error {
	return flash.WithError(c, fiber.Map{"type": "error", "message": message}).Redirect(target, fiber.StatusSeeOther)
}

func flashSuccess(c *fiber.Ctx, message, target string) error {
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": message}).Redirect(target, fiber.StatusSeeOther)
}

// firstHeaderValue returns the first non-empty header among keys.
func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Get(k)); v != "" {
			return v
		}
	}
	return ""
}
