package usercontext

import "github.com/gofiber/fiber/v2"

// Request modes. Embedded requests authenticate with a platform session
// token; standalone requests carry our own session cookie.
const (
	ModeEmbedded   = "embedded"
	ModeStandalone = "standalone"
)

// Principal is the resolved identity of a request: which tenant it acts
// for, which operator (standalone only), and whether the tenant's
// entitlement currently authorizes paid surfaces.
type Principal struct {
	TenantID   uint   `json:"tenant_id"`
	UserID     uint   `json:"user_id"`
	ShopDomain string `json:"shop_domain"`
	Mode       string `json:"mode"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	Entitled   bool   `json:"entitled"`
	// EntitlementState is the raw state driving Entitled, for views that
	// distinguish trialing from active.
	EntitlementState string `json:"entitlement_state"`
}

// Shared Locals/session keys used across controllers and middlewares.
const (
	PrincipalKey  = "PRINCIPAL"
	AuthKey       = "authenticated"
	KeyUserID     = "user_id"
	KeyUserName   = "user_name"
	KeyIsAdmin    = "is_admin"
	KeyTenantID   = "tenant_id"
	KeyShopDomain = "shop_domain"
)

// GetPrincipal retrieves the resolved principal from fiber locals.
// Returns an anonymous principal if none was set.
func GetPrincipal(c *fiber.Ctx) Principal {
	if p := c.Locals(PrincipalKey); p != nil {
		return p.(Principal)
	}
	return Principal{Mode: ModeStandalone}
}

// SetPrincipal stores the resolved principal for downstream handlers.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(PrincipalKey, p)
}

// IsLoggedIn reports whether the request carries an authenticated identity.
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetPrincipal(c).IsLoggedIn
}

// IsAdmin reports whether the request's operator has the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return GetPrincipal(c).IsAdmin
}

// TenantID returns the tenant the request acts for, or 0.
func TenantID(c *fiber.Ctx) uint {
	return GetPrincipal(c).TenantID
}

// IsEmbedded reports whether the request came through the platform admin.
func IsEmbedded(c *fiber.Ctx) bool {
	return GetPrincipal(c).Mode == ModeEmbedded
}
