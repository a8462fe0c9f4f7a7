package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authcore/internal/platform/config"
	"authcore/internal/platform/health"
	"authcore/internal/platform/middleware"
)

const maxBodyBytes = 64 << 10

// NewRouter assembles the admin listener. Probes and /metrics are open; every
// /admin route requires X-Admin-Token and shares one throttle.
func NewRouter(cfg config.AdminConfig, h *Handler, probes *health.Handler, gatherer prometheus.Gatherer, m *middleware.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))

	if probes != nil {
		probes.Register(r)
	}
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Throttle(cfg.RatePerSecond, cfg.Burst, logger, m))
		r.Use(middleware.RequireAdminToken(cfg.Token, logger))
		r.Use(middleware.BodyLimit(maxBodyBytes))
		r.Use(middleware.ContentTypeJSON)
		h.Register(r)
	})
	return r
}

// NewServer wraps the router in an http.Server with the configured timeouts.
func NewServer(cfg config.AdminConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
