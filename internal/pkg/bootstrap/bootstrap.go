// Package bootstrap assembles the long-lived application services from the
// environment and the shared database handle. Controllers and background
// workers always go through GetServices so every request sees the same
// wired instances.
package bootstrap

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/authorizer"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/billing"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/database"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/identity"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/platform"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/processor"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/secretbox"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/sessiontoken"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/webhooks"
)

// Services bundles the wired application services.
type Services struct {
	Repos        *repository.Repositories
	Entitlements entitlement.Repository
	Engine       *entitlement.Engine

	Platform  *platform.Client
	Processor *processor.Client
	Box       *secretbox.Box

	Authorizer *authorizer.Service
	Billing    *billing.Manager
	Pipeline   *webhooks.Pipeline
	Resolver   *identity.Resolver
}

var (
	instance *Services
	once     sync.Once
)

// GetServices returns the singleton service container, building it on the
// first call. The database must be set up before this runs.
func GetServices() *Services {
	once.Do(func() {
		instance = build()
	})
	return instance
}

func build() *Services {
	db := database.GetDB()
	repos := repository.NewRepositories(db)

	ents := entitlement.NewRepository(db)
	engine := entitlement.NewEngine(ents)

	box, err := secretbox.New(env.GetEnv("TOKEN_ENCRYPTION_SECRET", ""))
	if err != nil {
		log.Fatalf("[Bootstrap] token encryption secret: %v", err)
	}

	platformClient := platform.NewClientFromEnv()
	processorClient := processor.NewClientFromEnv()

	appBaseURL := strings.TrimRight(env.GetEnv("APP_BASE_URL", "http://localhost:3000"), "/")
	apiSecret := env.GetEnv("SHOPIFY_API_SECRET", "")

	auth := authorizer.NewService(repos.Tenant, engine, platformClient, box, apiSecret, appBaseURL)

	billingRepo := billing.NewRepository(db)
	manager := billing.NewManager(billingRepo, repos.Tenant, box, platformClient, processorClient)

	pipeline := webhooks.NewPipeline(
		webhooks.NewRepository(db),
		repos.Tenant,
		engine,
		manager,
		apiSecret,
		env.GetEnv("PROCESSOR_WEBHOOK_SECRET", ""),
	)

	verifier := sessiontoken.NewVerifier(env.GetEnv("SHOPIFY_API_KEY", ""), apiSecret)
	resolver := identity.NewResolver(verifier, repos.Tenant, repos.User, ents)

	return &Services{
		Repos:        repos,
		Entitlements: ents,
		Engine:       engine,
		Platform:     platformClient,
		Processor:    processorClient,
		Box:          box,
		Authorizer:   auth,
		Billing:      manager,
		Pipeline:     pipeline,
		Resolver:     resolver,
	}
}
