package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopdw/api/controllers"
	"github.com/angelmondragon/shopdw/api/middleware"
	"github.com/angelmondragon/shopdw/pkg/config"
	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

// NewRouter serves the health checks and the Prometheus scrape endpoint for the
// loader process.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	runs controllers.RunHistory,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, runs))
	})
	r.Get("/healthz", controllers.HealthReady(cfg, logg, dbP, runs))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
