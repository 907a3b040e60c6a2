package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/metrics/counter"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/webhooks"
)

// webhookTimeout bounds one delivery end to end. Senders retry on timeout,
// and the dedup ledger makes the retry safe.
const webhookTimeout = 25 * time.Second

// HandleShopifyWebhook ingests one platform webhook delivery. The body is
// passed through raw so signature verification sees the exact bytes.
func HandleShopifyWebhook(c *fiber.Ctx) error {
	d := webhooks.Delivery{
		Source:     models.WebhookSourceShopify,
		Topic:      firstHeaderValue(c, "X-Shopify-Topic"),
		EventID:    firstHeaderValue(c, "X-Shopify-Webhook-Id", "X-Shopify-Event-Id"),
		ShopDomain: firstHeaderValue(c, "X-Shopify-Shop-Domain"),
		Signature:  firstHeaderValue(c, "X-Shopify-Hmac-Sha256"),
		Raw:        append([]byte(nil), c.BodyRaw()...),
	}
	if d.Topic == "" {
		d.Topic = topicFromPath(c.Path())
	}
	return ingestWebhook(c, d)
}

// HandleProcessorWebhook ingests one payment-processor event.
func HandleProcessorWebhook(c *fiber.Ctx) error {
	d := webhooks.Delivery{
		Source:    models.WebhookSourceProcessor,
		Signature: firstHeaderValue(c, "Stripe-Signature", "Processor-Signature"),
		Raw:       append([]byte(nil), c.BodyRaw()...),
	}
	return ingestWebhook(c, d)
}

func ingestWebhook(c *fiber.Ctx, d webhooks.Delivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	res, err := bootstrap.GetServices().Pipeline.Ingest(ctx, d, time.Now())
	if errors.Is(err, webhooks.ErrInvalidSignature) {
		_ = counter.AddWebhookOutcome(d.Source, "rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if err != nil {
		// A non-2xx makes the sender redeliver; the ledger row without a
		// processed stamp admits the retry.
		log.Errorf("[Webhook] %s/%s: %v", d.Source, d.Topic, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	_ = counter.AddWebhookOutcome(d.Source, res.Outcome)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":      true,
		"outcome": res.Outcome,
	})
}

// topicFromPath maps a per-topic webhook route back onto the platform
// topic when the header is absent.
func topicFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, "/app-uninstalled"):
		return webhooks.TopicAppUninstalled
	case strings.HasSuffix(path, "/subscription-updated"):
		return webhooks.TopicSubscriptionUpdate
	case strings.HasSuffix(path, "/customers-data-request"):
		return webhooks.TopicCustomerDataRequest
	case strings.HasSuffix(path, "/customers-redact"):
		return webhooks.TopicCustomerRedact
	case strings.HasSuffix(path, "/shop-redact"):
		return webhooks.TopicShopRedact
	}
	return ""
}
