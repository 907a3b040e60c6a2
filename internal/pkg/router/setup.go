package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs one slice of the route table.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Webhook routes go first: they authenticate themselves via signatures
	// and must never pass through the session middleware stack.
	setup(app, NewWebhookRouter(), NewHttpRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
