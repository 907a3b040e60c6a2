package identity

import (
	"errors"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/sessiontoken"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// Resolution outcomes.
//
// Embedded requests that fail authentication resolve to NeedsAuthorization:
// inside the platform admin there is no login form to show, the only
// recovery is a fresh OAuth round trip. Standalone requests without a
// session resolve to NoSession and get the login page.
const (
	OutcomeAuthenticated      = "authenticated"
	OutcomeNeedsAuthorization = "needs_authorization"
	OutcomeNoSession          = "no_session"
)

// Resolution is the result of identity resolution for one request.
type Resolution struct {
	Outcome   string
	Principal usercontext.Principal
	// ShopDomain is set even when authentication failed, when the token
	// or request named a shop, so the re-auth redirect knows where to go.
	ShopDomain string
}

// Resolver turns request credentials into a Principal. It never renders;
// callers translate outcomes into redirects or errors.
type Resolver struct {
	verifier *sessiontoken.Verifier
	tenants  repository.TenantRepository
	users    repository.UserRepository
	ents     entitlement.Repository
}

func NewResolver(verifier *sessiontoken.Verifier, tenants repository.TenantRepository, users repository.UserRepository, ents entitlement.Repository) *Resolver {
	return &Resolver{verifier: verifier, tenants: tenants, users: users, ents: ents}
}

// ResolveEmbedded authenticates a platform session token. The token's
// signature and audience prove the request came from our app inside the
// admin of the shop it names; the shop must still map onto a tenant with an
// active installation, because a valid token can outlive an uninstall.
func (r *Resolver) ResolveEmbedded(token string, now time.Time) Resolution {
	claims, err := r.verifier.Verify(token)
	if err != nil {
		return Resolution{Outcome: OutcomeNeedsAuthorization}
	}
	shop := models.NormalizeShopDomain(claims.ShopDomain())

	tenant, err := r.tenants.GetByShopDomain(shop)
	if err != nil {
		return Resolution{Outcome: OutcomeNeedsAuthorization, ShopDomain: shop}
	}
	inst, err := r.tenants.GetInstallation(tenant.ID)
	if err != nil || !inst.Active {
		return Resolution{Outcome: OutcomeNeedsAuthorization, ShopDomain: shop}
	}

	p := usercontext.Principal{
		TenantID:   tenant.ID,
		ShopDomain: shop,
		Mode:       usercontext.ModeEmbedded,
		IsLoggedIn: true,
	}
	r.attachEntitlement(&p, now)
	return Resolution{Outcome: OutcomeAuthenticated, Principal: p, ShopDomain: shop}
}

// ResolveStandalone authenticates a session-cookie user id.
func (r *Resolver) ResolveStandalone(userID uint, now time.Time) Resolution {
	if userID == 0 {
		return Resolution{Outcome: OutcomeNoSession}
	}
	user, err := r.users.GetByID(userID)
	if err != nil || user.Status != models.STATUS_ACTIVE {
		return Resolution{Outcome: OutcomeNoSession}
	}

	p := usercontext.Principal{
		UserID:     user.ID,
		Mode:       usercontext.ModeStandalone,
		IsLoggedIn: true,
		IsAdmin:    user.Role == models.ROLE_ADMIN,
	}
	if user.TenantID != nil {
		p.TenantID = *user.TenantID
		if tenant, err := r.tenants.GetByID(p.TenantID); err == nil {
			p.ShopDomain = tenant.ShopDomain
		}
		r.attachEntitlement(&p, now)
	}
	return Resolution{Outcome: OutcomeAuthenticated, Principal: p, ShopDomain: p.ShopDomain}
}

func (r *Resolver) attachEntitlement(p *usercontext.Principal, now time.Time) {
	ent, err := r.ents.Get(p.TenantID)
	if err != nil {
		if !errors.Is(err, entitlement.ErrNotFound) {
			return
		}
		p.EntitlementState = ""
		return
	}
	p.EntitlementState = ent.State
	p.Entitled = entitlement.IsAuthorized(ent, now)
}
