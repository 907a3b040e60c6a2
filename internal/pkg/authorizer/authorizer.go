package authorizer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/platform"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/secretbox"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/signature"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/webhooks"
)

var (
	ErrInvalidShopDomain = errors.New("authorizer: invalid shop domain")
	ErrInvalidSignature  = errors.New("authorizer: callback signature invalid")
	ErrStateExpired      = errors.New("authorizer: state expired")
	ErrStateMismatch     = errors.New("authorizer: state does not match callback")
	ErrExchangeFailed    = errors.New("authorizer: code exchange failed")
)

// StateTTL bounds how long an OAuth round trip may take.
const StateTTL = 10 * time.Minute

// webhookTopics are registered after every successful install so the
// pipeline sees lifecycle and compliance events.
var webhookTopics = []string{
	webhooks.TopicAppUninstalled,
	webhooks.TopicSubscriptionUpdate,
	webhooks.TopicCustomerDataRequest,
	webhooks.TopicCustomerRedact,
	webhooks.TopicShopRedact,
}

// PlatformAPI is the slice of the platform client the authorizer calls.
type PlatformAPI interface {
	AuthorizeURL(shopDomain, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, shopDomain, code string) (*platform.TokenResponse, error)
	GetShop(ctx context.Context, shopDomain, accessToken string) (*platform.Shop, error)
	RegisterWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error
}

// Service drives the OAuth install/re-auth flow end to end: redirect out
// with signed state, verify the callback, exchange the code, persist the
// tenant with an encrypted credential, and open the trial.
type Service struct {
	tenants    repository.TenantRepository
	engine     *entitlement.Engine
	platform   PlatformAPI
	box        *secretbox.Box
	apiSecret  string
	appBaseURL string
}

func NewService(tenants repository.TenantRepository, engine *entitlement.Engine, api PlatformAPI, box *secretbox.Box, apiSecret, appBaseURL string) *Service {
	return &Service{
		tenants:    tenants,
		engine:     engine,
		platform:   api,
		box:        box,
		apiSecret:  apiSecret,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// Outcome is a completed authorization.
type Outcome struct {
	Tenant   *models.Tenant
	Embedded bool
	// FreshInstall is false when the shop was already installed and this
	// flow only rotated the credential.
	FreshInstall bool
}

// BeginAuthorization validates the shop domain and returns the platform
// authorization URL carrying signed state. The state pins the shop and the
// embedded flag so the callback cannot be replayed against another shop.
func (s *Service) BeginAuthorization(shopDomain string, embedded bool) (string, error) {
	shop := models.NormalizeShopDomain(shopDomain)
	if !ValidShopDomain(shop) {
		return "", fmt.Errorf("%w: %q", ErrInvalidShopDomain, shopDomain)
	}

	state, err := signature.SignState(signature.StateClaims{
		ShopDomain: shop,
		Embedded:   embedded,
		Nonce:      uuid.NewString(),
	}, StateTTL, s.apiSecret)
	if err != nil {
		return "", err
	}
	return s.platform.AuthorizeURL(shop, s.appBaseURL+"/auth/callback", state)
}

// CompleteAuthorization verifies and finishes the OAuth callback. The
// query-string HMAC is checked before anything else is trusted.
func (s *Service) CompleteAuthorization(ctx context.Context, query url.Values) (*Outcome, error) {
	if !signature.VerifyCallbackHMAC(query, s.apiSecret) {
		return nil, ErrInvalidSignature
	}

	claims, err := signature.VerifyState(query.Get("state"), s.apiSecret)
	if err != nil {
		if errors.Is(err, signature.ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}

	shop := models.NormalizeShopDomain(query.Get("shop"))
	if shop == "" || shop != claims.ShopDomain {
		return nil, fmt.Errorf("%w: callback shop %q, state shop %q", ErrStateMismatch, shop, claims.ShopDomain)
	}

	tok, err := s.platform.ExchangeCode(ctx, shop, query.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	enc, err := s.box.Seal(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}

	tenant := &models.Tenant{ShopDomain: shop, DisplayName: shop}
	inst := &models.Installation{
		AccessTokenEnc: enc,
		Scopes:         tok.Scope,
		Active:         true,
		InstalledAt:    time.Now(),
	}

	// The shop lookup enriches the record but must not block the install.
	if info, err := s.platform.GetShop(ctx, shop, tok.AccessToken); err == nil {
		inst.ShopID = info.ID
		if info.Name != "" {
			tenant.DisplayName = info.Name
		}
	} else {
		log.Warnf("authorizer: shop lookup for %s: %v", shop, err)
	}

	fresh := true
	if existing, err := s.tenants.GetByShopDomain(shop); err == nil {
		tenant.ID = existing.ID
		fresh = false
	}

	if err := s.tenants.UpsertWithInstallation(tenant, inst); err != nil {
		return nil, err
	}

	if _, err := s.engine.StartTrial(ctx, tenant.ID, time.Now()); err != nil {
		return nil, err
	}

	s.registerWebhooks(ctx, shop, tok.AccessToken)

	return &Outcome{Tenant: tenant, Embedded: claims.Embedded, FreshInstall: fresh}, nil
}

// registerWebhooks subscribes the app to its topics. Failures are logged
// and skipped: the install already succeeded and the platform retries
// registration on the next re-auth.
func (s *Service) registerWebhooks(ctx context.Context, shop, accessToken string) {
	address := s.appBaseURL + "/webhooks/shopify"
	for _, topic := range webhookTopics {
		if err := s.platform.RegisterWebhook(ctx, shop, accessToken, topic, address); err != nil {
			log.Warnf("authorizer: register %s for %s: %v", topic, shop, err)
		}
	}
}

// ValidShopDomain reports whether the domain is a plausible platform shop:
// a single label of letters, digits, and hyphens under .myshopify.com.
func ValidShopDomain(domain string) bool {
	const suffix = ".myshopify.com"
	if !strings.HasSuffix(domain, suffix) {
		return false
	}
	label := strings.TrimSuffix(domain, suffix)
	if label == "" || strings.Contains(label, ".") {
		return false
	}
	for _, r := range label {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
