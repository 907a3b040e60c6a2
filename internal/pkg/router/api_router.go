package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/api/v1"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "EmployeeSuite API",
		})
	})

	// API v1 routes. Embedded clients authenticate with session tokens;
	// failures answer 401 with a re-authorize hint instead of redirecting.
	v1 := api.Group("/v1", middleware.RequireAPIAuth)
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer())
}
