package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/session"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/usercontext"
)

// HandleProviderLogin sends the operator to the configured identity
// provider (/auth/:provider).
func HandleProviderLogin(c *fiber.Ctx) error {
	return gothfiber.BeginAuthHandler(c)
}

// HandleProviderCallback completes the provider flow and logs the operator
// in, creating the account on first sign-in.
func HandleProviderCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}
	if u.Email == "" {
		return c.Status(fiber.StatusBadRequest).SendString("identity provider returned no email")
	}

	svc := bootstrap.GetServices()
	user, err := svc.Repos.User.GetByEmail(u.Email)
	if err != nil {
		// First sign-in through this provider. The password is a random
		// placeholder; it is never usable for form login.
		placeholder := fmt.Sprintf("oauth_%d", time.Now().UnixNano())
		hash, _ := models.HashPassword(placeholder)
		user = &models.User{
			Name:     firstNonEmptyString(u.Name, u.NickName, u.Email),
			Email:    u.Email,
			Password: hash,
			Role:     models.ROLE_USER,
			Status:   models.STATUS_ACTIVE,
		}
		if err := svc.Repos.User.Create(user); err != nil {
			log.Errorf("[OAuth] create user from provider %s: %v", u.Provider, err)
			return c.Status(fiber.StatusInternalServerError).SendString("account creation failed")
		}
	}
	if user.Status != models.STATUS_ACTIVE {
		return flashError(c, "This account is disabled", "/login")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}
	if err := sess.Regenerate(); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUserName, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}

	if err := svc.Repos.User.TouchLastLogin(user.ID, time.Now()); err != nil {
		log.Warnf("[OAuth] touch last login for user %d: %v", user.ID, err)
	}

	return c.Redirect("/dashboard", fiber.StatusSeeOther)
}

func firstNonEmptyString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
