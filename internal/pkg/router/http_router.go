package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/controllers"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/middleware"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/oauth"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/session"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	svc := bootstrap.GetServices()

	// Resolve the principal on every request before any guard runs.
	app.Use(middleware.Identity(svc.Resolver))

	h.registerAuthRoutes(app)
	h.registerAppRoutes(app)
}

// registerAuthRoutes covers everything under /auth plus the platform
// install entry points. These routes authenticate themselves.
func (h HttpRouter) registerAuthRoutes(app *fiber.App) {
	// Platform OAuth. /install is the path the platform opens on first
	// install; /auth/install is what our guards redirect to.
	app.Get("/install", controllers.HandleInstall)
	app.Get("/auth/install", controllers.HandleInstall)
	app.Get("/auth/callback", controllers.HandleInstallCallback)

	// Social sign-in for standalone operators
	app.Get("/auth/:provider", controllers.HandleProviderLogin)
	app.Get("/auth/:provider/callback", controllers.HandleProviderCallback)
}

// registerAppRoutes covers the browser-facing pages. Standalone forms are
// CSRF protected; embedded requests authenticate with bearer tokens and
// are exempt.
func (h HttpRouter) registerAppRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			if strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/") {
				return true
			}
			// Embedded requests carry a session token, not a cookie.
			return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderAuthorization)), "bearer ")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))

	group.Get("/", controllers.HandleHome)

	// Standalone auth
	group.Get("/login", controllers.HandleLoginPage)
	group.Post("/login", controllers.HandleLogin)
	group.Get("/register", controllers.HandleRegisterPage)
	group.Post("/register", controllers.HandleRegister)
	group.Post("/logout", middleware.RequireAuth, controllers.HandleLogout)

	// Billing stays reachable for unentitled tenants; it is where they fix
	// their subscription.
	group.Get("/billing", middleware.RequireAuth, controllers.HandleBillingPage)
	group.Post("/billing/subscribe", middleware.RequireAuth, controllers.HandleSubscribe)
	group.Get("/billing/confirm", middleware.RequireAuth, controllers.HandleBillingConfirm)

	// Entitlement-gated product surface
	group.Get("/dashboard", middleware.RequireAuth, middleware.RequireEntitlement, controllers.HandleDashboard)
}
