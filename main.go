package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/cache"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/database"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/jobqueue"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/mail"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/router"
)

// Dev entry point. Production runs cmd/employeesuite, which adds static
// asset tuning, metrics auth, and graceful shutdown.
func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "3000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	if err := entitlement.ValidateTable(); err != nil {
		log.Fatalf("entitlement table: %v", err)
	}

	database.SetupDatabase()
	cache.SetupCache()

	engine := html.New("./views", ".html")
	app := fiber.New(fiber.Config{
		Views: engine,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())
	app.Static("/", "./public/assets")

	// ROUTER
	router.InstallRouter(app)

	svc := bootstrap.GetServices()
	jq := jobqueue.GetManager()
	jq.Configure(&mail.SMTPMailer{}, nil, svc.Billing, svc.Repos.User)
	jq.Start()
	svc.Pipeline.SetAsync(jq)
	svc.Billing.SetNotifier(jq)

	return app
}
