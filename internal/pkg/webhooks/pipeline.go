package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/processor"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/signature"
)

// Platform webhook topics the pipeline dispatches on.
const (
	TopicAppUninstalled      = "app/uninstalled"
	TopicSubscriptionUpdate  = "app_subscriptions/update"
	TopicCustomerDataRequest = "customers/data_request"
	TopicCustomerRedact      = "customers/redact"
	TopicShopRedact          = "shop/redact"
)

// Ingest outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// ErrInvalidSignature rejects a delivery before its body is interpreted.
// Handlers map it to 401 so the sender does not retry forever with a bad
// secret silently succeeding.
var ErrInvalidSignature = errors.New("webhooks: invalid signature")

// Delivery is one inbound webhook request, captured raw. Signature
// verification runs over Raw exactly as received; decoding happens only
// after the signature holds.
type Delivery struct {
	Source     string
	Topic      string
	EventID    string
	ShopDomain string
	Raw        []byte
	Signature  string
}

// Result reports what Ingest did with a delivery.
type Result struct {
	Outcome string
	Event   *models.WebhookEvent
}

// ChargeConfirmer is the slice of the billing manager the pipeline uses.
type ChargeConfirmer interface {
	ConfirmPendingForTenant(ctx context.Context, tenantID uint, externalID, externalStatus string, now time.Time) (*models.Charge, error)
}

// Async receives slow side effects after the delivery is acknowledged.
// Failures there never affect the webhook response.
type Async interface {
	EnqueueDataExport(tenantID uint, topic string, payloadJSON string) error
}

// Pipeline verifies, deduplicates, and dispatches webhook deliveries.
type Pipeline struct {
	repo            Repository
	tenants         repository.TenantRepository
	engine          *entitlement.Engine
	charges         ChargeConfirmer
	async           Async
	platformSecret  string
	processorSecret string
}

func NewPipeline(repo Repository, tenants repository.TenantRepository, engine *entitlement.Engine, charges ChargeConfirmer, platformSecret, processorSecret string) *Pipeline {
	return &Pipeline{
		repo:            repo,
		tenants:         tenants,
		engine:          engine,
		charges:         charges,
		platformSecret:  platformSecret,
		processorSecret: processorSecret,
	}
}

// SetAsync wires the deferred side-effect sink. Optional.
func (p *Pipeline) SetAsync(a Async) { p.async = a }

// Ingest runs the full pipeline for one delivery: verify the signature on
// the raw bytes, record the event in the dedup ledger, resolve the tenant,
// dispatch, and stamp the outcome. A delivery whose (source, event id) was
// already processed is acknowledged without reprocessing; one that was
// recorded but failed gets another attempt on redelivery.
func (p *Pipeline) Ingest(ctx context.Context, d Delivery, now time.Time) (*Result, error) {
	if err := p.verify(d, now); err != nil {
		return nil, err
	}

	event := &models.WebhookEvent{
		Source:         d.Source,
		EventID:        eventID(d),
		Topic:          d.Topic,
		PayloadJSON:    string(d.Raw),
		SignatureValid: true,
	}
	created, stored, err := p.repo.CreateEventIfNotExists(event)
	if err != nil {
		return nil, err
	}
	if !created && stored.ProcessedAt != nil {
		return &Result{Outcome: OutcomeDuplicate, Event: stored}, nil
	}

	outcome, dispatchErr := p.dispatch(ctx, d, now)
	if dispatchErr != nil {
		if markErr := p.repo.MarkFailed(stored.ID, dispatchErr.Error()); markErr != nil {
			log.Errorf("webhooks: mark event %d failed: %v", stored.ID, markErr)
		}
		return nil, dispatchErr
	}
	if err := p.repo.MarkProcessed(stored.ID, now); err != nil {
		return nil, err
	}
	return &Result{Outcome: outcome, Event: stored}, nil
}

func (p *Pipeline) verify(d Delivery, now time.Time) error {
	switch d.Source {
	case models.WebhookSourceShopify:
		if !signature.VerifyPlatformWebhook(d.Raw, d.Signature, p.platformSecret) {
			return ErrInvalidSignature
		}
	case models.WebhookSourceProcessor:
		if err := signature.VerifyProcessorWebhook(d.Raw, d.Signature, p.processorSecret, now); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	default:
		return fmt.Errorf("webhooks: unknown source %q", d.Source)
	}
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, d Delivery, now time.Time) (string, error) {
	switch d.Source {
	case models.WebhookSourceShopify:
		return p.dispatchPlatform(ctx, d, now)
	case models.WebhookSourceProcessor:
		return p.dispatchProcessor(ctx, d, now)
	}
	return OutcomeIgnored, nil
}

// platformPayload covers the fields shared by the platform topics we
// handle. Each topic fills a subset.
type platformPayload struct {
	ID              int64  `json:"id"`
	ShopID          int64  `json:"shop_id"`
	ShopDomain      string `json:"shop_domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
	AppSubscription struct {
		AdminGraphqlAPIID string `json:"admin_graphql_api_id"`
		Status            string `json:"status"`
	} `json:"app_subscription"`
}

func (p *Pipeline) dispatchPlatform(ctx context.Context, d Delivery, now time.Time) (string, error) {
	var payload platformPayload
	if err := json.Unmarshal(d.Raw, &payload); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", d.Topic, err)
	}

	tenantID, err := p.resolvePlatformTenant(d, &payload)
	if err != nil {
		if errors.Is(err, ErrTenantUnknown) && isComplianceTopic(d.Topic) {
			// Compliance hooks are mandatory and also fire for shops that
			// never finished installing. Nothing to erase or export, so
			// acknowledge instead of making the sender redeliver.
			return OutcomeIgnored, nil
		}
		return "", err
	}

	switch d.Topic {
	case TopicAppUninstalled:
		_, _, err := p.engine.Transition(ctx, tenantID, entitlement.TransitionInput{
			Event: entitlement.EventAppUninstalled,
			Now:   now,
		})
		return transitionOutcome(err)

	case TopicSubscriptionUpdate:
		extID := trailingID(payload.AppSubscription.AdminGraphqlAPIID)
		switch strings.ToUpper(payload.AppSubscription.Status) {
		case "ACTIVE":
			_, err := p.charges.ConfirmPendingForTenant(ctx, tenantID, extID, "accepted", now)
			return OutcomeProcessed, err
		case "DECLINED", "EXPIRED", "FROZEN":
			_, err := p.charges.ConfirmPendingForTenant(ctx, tenantID, extID, "declined", now)
			return OutcomeProcessed, err
		case "CANCELLED":
			_, _, err := p.engine.Transition(ctx, tenantID, entitlement.TransitionInput{
				Event: entitlement.EventSubscriptionCancelled,
				Now:   now,
			})
			return transitionOutcome(err)
		}
		return OutcomeIgnored, nil

	case TopicCustomerDataRequest:
		if p.async != nil {
			if err := p.async.EnqueueDataExport(tenantID, d.Topic, string(d.Raw)); err != nil {
				log.Errorf("webhooks: enqueue data export for tenant %d: %v", tenantID, err)
			}
		}
		return OutcomeProcessed, nil

	case TopicCustomerRedact, TopicShopRedact:
		return OutcomeProcessed, p.tenants.EraseTenantData(tenantID)
	}

	return OutcomeIgnored, nil
}

func (p *Pipeline) dispatchProcessor(ctx context.Context, d Delivery, now time.Time) (string, error) {
	ev, err := processor.ParseEvent(d.Raw)
	if err != nil {
		return "", fmt.Errorf("decode processor payload: %w", err)
	}

	tenantID, err := p.resolveProcessorTenant(ev)
	if err != nil {
		return "", err
	}

	switch ev.Type {
	case processor.TopicPaymentSucceeded:
		ch, err := p.charges.ConfirmPendingForTenant(ctx, tenantID, ev.SubID, "active", now)
		if err != nil {
			return "", err
		}
		if ch != nil {
			return OutcomeProcessed, nil
		}
		// No pending charge: a renewal. It only changes state when a prior
		// failure parked the tenant in past_due; an active tenant renewing
		// has no valid transition and stays put.
		_, _, err = p.engine.Transition(ctx, tenantID, entitlement.TransitionInput{
			Event:   entitlement.EventChargeConfirmed,
			Version: ev.Created,
			Now:     now,
		})
		return transitionOutcome(err)

	case processor.TopicPaymentFailed:
		_, _, err := p.engine.Transition(ctx, tenantID, entitlement.TransitionInput{
			Event:   entitlement.EventPaymentFailed,
			Version: ev.Created,
			Now:     now,
		})
		return transitionOutcome(err)

	case processor.TopicSubscriptionCancelled:
		_, _, err := p.engine.Transition(ctx, tenantID, entitlement.TransitionInput{
			Event:   entitlement.EventSubscriptionCancelled,
			Version: ev.Created,
			Now:     now,
		})
		return transitionOutcome(err)
	}

	return OutcomeIgnored, nil
}

func (p *Pipeline) resolvePlatformTenant(d Delivery, payload *platformPayload) (uint, error) {
	domain := firstNonEmpty(d.ShopDomain, payload.MyshopifyDomain, payload.ShopDomain)
	if domain != "" {
		t, err := p.tenants.GetByShopDomain(models.NormalizeShopDomain(domain))
		if err == nil {
			return t.ID, nil
		}
	}
	shopID := payload.ShopID
	if shopID == 0 && d.Topic == TopicAppUninstalled {
		// The uninstall payload is the shop object itself.
		shopID = payload.ID
	}
	if shopID != 0 {
		t, err := p.tenants.GetByShopID(shopID)
		if err == nil {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: shop %q", ErrTenantUnknown, domain)
}

func (p *Pipeline) resolveProcessorTenant(ev *processor.Event) (uint, error) {
	if ev.SubID != "" {
		if id, err := p.repo.FindTenantBySubscription(ev.SubID); err == nil {
			return id, nil
		}
	}
	// First event for a new subscription: the entitlement does not carry
	// the sub id yet, so fall back to the checkout metadata.
	if ev.TenantID != 0 {
		return ev.TenantID, nil
	}
	return 0, fmt.Errorf("%w: subscription %q", ErrTenantUnknown, ev.SubID)
}

func isComplianceTopic(topic string) bool {
	switch topic {
	case TopicCustomerDataRequest, TopicCustomerRedact, TopicShopRedact:
		return true
	}
	return false
}

// transitionOutcome acknowledges table-rejected events instead of failing
// the delivery. A repeated payment_failed while already past_due, or a
// cancellation landing after uninstall, is routine redelivery traffic and
// must not trigger retries.
func transitionOutcome(err error) (string, error) {
	if errors.Is(err, entitlement.ErrInvalidTransition) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// eventID prefers the sender-assigned id; deliveries without one fall back
// to a payload fingerprint so replays still collapse.
func eventID(d Delivery) string {
	id := strings.TrimSpace(d.EventID)
	if id != "" {
		return id
	}
	sum := sha256.Sum256(d.Raw)
	return "hash:" + hex.EncodeToString(sum[:])
}

func trailingID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
