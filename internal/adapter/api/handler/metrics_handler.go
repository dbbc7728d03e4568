package handler

import (
	"log/slog"
	"net/http"
)

// Snapshotter renders the current metric values in exposition format.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

// MetricsHandler serves the exporter's metrics snapshot.
type MetricsHandler struct {
	metrics     Snapshotter
	contentType string
	logger      *slog.Logger
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(metrics Snapshotter, contentType string, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics:     metrics,
		contentType: contentType,
		logger:      logger,
	}
}

// ServeHTTP renders a fresh snapshot for every request. A rendering failure
// only fails the current request.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.metrics.Snapshot()
	if err != nil {
		h.logger.Error("failed to render metrics snapshot", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", h.contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug("failed to write metrics response", "error", err)
	}
}
