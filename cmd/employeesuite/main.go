package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/bootstrap"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/cache"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/database"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/exporter"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/jobqueue"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/mail"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// graceful shutdown: drain HTTP first, then the job workers
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("shutting down")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "3000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
	jobqueue.GetManager().Stop()
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	// A hole in the transition table would silently strand tenants, so a
	// bad table is fatal at boot.
	if err := entitlement.ValidateTable(); err != nil {
		log.Fatalf("entitlement table: %v", err)
	}

	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/employeesuite to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		Views: html.New(basePath+"views", ".html"),
	})

	// ignore and cache favicon
	app.Use(favicon.New(favicon.Config{
		File:         basePath + "public/assets/favicon.ico",
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// ROUTER (also builds the service container)
	router.InstallRouter(app)

	startBackgroundWorkers()

	return app
}

// startBackgroundWorkers wires the job queue to its processors and starts
// the worker pool plus the reconcile ticker.
func startBackgroundWorkers() {
	svc := bootstrap.GetServices()

	var exportSvc jobqueue.Exporter
	if cfg, err := exporter.LoadConfig(); err != nil {
		log.Printf("data export disabled: %v", err)
	} else if cfg.IsEnabled() {
		s3svc, err := exporter.NewService(cfg, database.GetDB())
		if err != nil {
			log.Printf("data export disabled: %v", err)
		} else {
			exportSvc = s3svc
		}
	}

	jq := jobqueue.GetManager()
	jq.Configure(&mail.SMTPMailer{}, exportSvc, svc.Billing, svc.Repos.User)
	jq.Start()

	// Post-commit side effects flow through the queue.
	svc.Pipeline.SetAsync(jq)
	svc.Billing.SetNotifier(jq)
}
