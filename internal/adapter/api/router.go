package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/api/handler"
	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/api/middleware"
	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/metrics"
)

// NewRouter creates and configures the HTTP router for the metrics server.
func NewRouter(m *metrics.HarvesterMetrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	metricsHandler := handler.NewMetricsHandler(m, metrics.ContentType, logger)
	mux.Handle("GET /metrics", promhttp.InstrumentHandlerDuration(m.ScrapeDuration, metricsHandler))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(mux)
}
