// Package main provides the Unspun API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/unspun/unspun/pkg/eventbus"
	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/registry"
	"github.com/unspun/unspun/pkg/services"
	"github.com/unspun/unspun/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	jobService := services.NewJobs(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(jobService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Unspun API")
	})

	jobs := app.Group("/jobs")
	jobs.Get("/", handlers.GetJobs)
	jobs.Post("/", handlers.SubmitJob)
	jobs.Get("/:id", handlers.GetJob)
	jobs.Post("/:id/cancel", handlers.CancelJob)
	jobs.Delete("/:id", handlers.DeleteJob)
	jobs.Get("/:id/summary", handlers.GetRunSummary)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
