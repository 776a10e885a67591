package web

import (
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// AppConfig toggles optional middleware.
type AppConfig struct {
	RequestLogger bool
}

// NewApp registers every route on a new fiber app.
func NewApp(handlers *APIHandlers, cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "flowrun"})

	app.Use(cors.New())

	if cfg.RequestLogger {
		app.Use(logger.New(logger.Config{
			DisableColors: true,
		}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowrun API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/node-types", handlers.GetNodeTypes)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/validate", handlers.ValidateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	w.Get("/:id/triggers", handlers.GetTriggers)
	w.Post("/:id/triggers", handlers.CreateTrigger)
	w.Put("/:id/triggers/:triggerId", handlers.UpdateTrigger)
	w.Delete("/:id/triggers/:triggerId", handlers.DeleteTrigger)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/node-runs", handlers.GetExecutionNodeRuns)
	e.Get("/:id/events", handlers.StreamExecutionEvents)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.All("/webhooks/:workflowId", handlers.ReceiveWebhook)

	return app
}
