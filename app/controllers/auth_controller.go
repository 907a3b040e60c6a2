package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/hcaptcha"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/session"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// HandleLoginPage renders the standalone login form. Embedded requests
// never reach this handler; their guard sends them back through OAuth.
func HandleLoginPage(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect("/dashboard", fiber.StatusSeeOther)
	}
	return c.Render("login", viewContext(c, fiber.Map{"Title": "Sign in"}))
}

// HandleLogin authenticates a standalone operator with email + password.
func HandleLogin(c *fiber.Ctx) error {
	email := c.FormValue("email")
	password := c.FormValue("password")
	if email == "" || password == "" {
		return flashError(c, "Email and password are required", "/login")
	}

	svc := bootstrap.GetServices()
	user, err := svc.Repos.User.GetByEmail(email)
	if err != nil || !models.CheckPasswordHash(password, user.Password) {
		return flashError(c, "Invalid email or password", "/login")
	}
	if user.Status != models.STATUS_ACTIVE {
		return flashError(c, "This account is disabled", "/login")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return flashError(c, "Session could not be created", "/login")
	}
	// Rotate the session id on privilege change.
	if err := sess.Regenerate(); err != nil {
		return flashError(c, "Session could not be created", "/login")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUserName, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return flashError(c, "Session could not be saved", "/login")
	}

	if err := svc.Repos.User.TouchLastLogin(user.ID, time.Now()); err != nil {
		log.Warnf("[Auth] touch last login for user %d: %v", user.ID, err)
	}

	return c.Redirect("/dashboard", fiber.StatusSeeOther)
}

// HandleRegisterPage renders the standalone registration form.
func HandleRegisterPage(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect("/dashboard", fiber.StatusSeeOther)
	}
	return c.Render("register", viewContext(c, fiber.Map{"Title": "Create account"}))
}

// HandleRegister creates a standalone operator account. When a shop domain
// is supplied and that shop has installed the app, the account is linked to
// its tenant so the operator sees the workspace immediately.
func HandleRegister(c *fiber.Ctx) error {
	name := c.FormValue("name")
	email := c.FormValue("email")
	password := c.FormValue("password")

	if hcaptcha.Enabled() {
		if ok, err := hcaptcha.Verify(c.FormValue("h-captcha-response")); !ok {
			log.Warnf("[Auth] captcha rejected for %s: %v", email, err)
			return flashError(c, "Captcha verification failed", "/register")
		}
	}

	user, err := models.CreateUser(name, email, password)
	if err != nil {
		return flashError(c, "Registration data is invalid: "+err.Error(), "/register")
	}

	svc := bootstrap.GetServices()
	if shop := models.NormalizeShopDomain(c.FormValue("shop_domain")); shop != "" {
		tenant, err := svc.Repos.Tenant.GetByShopDomain(shop)
		if err != nil {
			return flashError(c, "No installation found for that shop domain", "/register")
		}
		user.TenantID = &tenant.ID
	}

	if _, err := svc.Repos.User.GetByEmail(email); err == nil {
		return flashError(c, "An account with that email already exists", "/register")
	}
	if err := svc.Repos.User.Create(user); err != nil {
		log.Errorf("[Auth] create user: %v", err)
		return flashError(c, "Account could not be created", "/register")
	}

	return flashSuccess(c, "Account created, you can sign in now", "/login")
}

// HandleLogout destroys the standalone session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Warnf("[Auth] destroy session: %v", err)
		}
	}
	return c.Redirect("/login", fiber.StatusSeeOther)
}
