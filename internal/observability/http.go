package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the API's own registry: runtime collectors plus the
// request, transition, audit and summary cache series. Collectors registered
// on the global default registry by libraries are not exposed.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		// a collector failing to gather must not blank the whole scrape
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      registry,
	}))
}
