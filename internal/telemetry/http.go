package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsRouter builds the chi-routed HTTP surface a long-lived serve
// session exposes for operators: a liveness probe and a Prometheus scrape
// endpoint. It never touches the MCP JSON-RPC transport (stdio), so it's
// safe to run on its own port alongside it.
func NewMetricsRouter(collector *MetricsCollector, startedAt time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
		})
	})

	metricsHandler := promhttp.Handler()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		collector.Refresh()
		metricsHandler.ServeHTTP(w, req)
	})

	return r
}
