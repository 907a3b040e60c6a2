package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
)

// OpsKeyAuth protects operational endpoints (reconcile triggers, queue
// introspection) with a static key. These routes are called by cron and
// operators, never by tenants.
func OpsKeyAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := env.GetEnv("OPS_API_KEY", "")
		if expected == "" {
			return c.Status(fiber.StatusNotFound).SendString("not found")
		}
		provided := extractOpsKey(c)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "missing or invalid ops key",
			})
		}
		return c.Next()
	}
}

func extractOpsKey(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get("X-Ops-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
