package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/metrics/counter"
)

// HandleOpsReconcile runs the stale-charge sweep on demand. The periodic
// ticker covers normal operation; this exists for incident response.
func HandleOpsReconcile(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resolved, err := bootstrap.GetServices().Billing.ReconcileStaleCharges(ctx, time.Now())
	if err != nil {
		log.Errorf("[Ops] reconcile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "resolved": resolved})
}

// HandleOpsStats exposes the Redis operational counters.
func HandleOpsStats(c *fiber.Ctx) error {
	stats, err := counter.Snapshot()
	if err != nil {
		log.Errorf("[Ops] stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.JSON(stats)
}
