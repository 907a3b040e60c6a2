package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/controllers"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/middleware"
)

// WebhookRouter installs the inbound webhook endpoints and the ops surface.
// All of them verify their own credentials: webhooks via signatures over
// the raw body, ops via the shared operations key.
type WebhookRouter struct {
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	shopify := app.Group("/webhooks/shopify")
	shopify.Post("/", controllers.HandleShopifyWebhook)
	shopify.Post("/app-uninstalled", controllers.HandleShopifyWebhook)
	shopify.Post("/subscription-updated", controllers.HandleShopifyWebhook)
	shopify.Post("/customers-data-request", controllers.HandleShopifyWebhook)
	shopify.Post("/customers-redact", controllers.HandleShopifyWebhook)
	shopify.Post("/shop-redact", controllers.HandleShopifyWebhook)

	app.Post("/webhooks/processor", controllers.HandleProcessorWebhook)

	ops := app.Group("/ops", middleware.OpsKeyAuth())
	ops.Post("/reconcile", controllers.HandleOpsReconcile)
	ops.Get("/stats", controllers.HandleOpsStats)
}
