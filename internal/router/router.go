package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-points-api/internal/config"
	"github.com/noah-isme/activity-points-api/internal/handler"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	WorkflowHandler    *handler.WorkflowHandler
	EntityHandler      *handler.EntityHandler
	HealthProbes       map[string]handler.Probe
	IdentityMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// health is registered ahead of the identity middleware and stays public
	identity := deps.IdentityMiddleware
	if identity == nil {
		identity = middleware.Identity(cfg.AuthMode, cfg.JWTSecret)
	}
	secured := api.Group("", identity)

	if deps.WorkflowHandler != nil {
		deps.WorkflowHandler.Register(secured, middleware.RateLimit("transitions", cfg.TransitionRateLimit, cfg.TransitionWindow))
	}
	if deps.EntityHandler != nil {
		deps.EntityHandler.Register(secured)
	}
}
