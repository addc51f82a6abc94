package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/alerting"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/ingest"
	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

// MonitoringHandler serves the metrics read API, alert operations and the
// realtime stream.
type MonitoringHandler struct {
	alerts  *alerting.AlertService
	metrics *ingest.MetricsService
	hub     *hub.Hub
	logger  *zap.Logger
}

func NewMonitoringHandler(alerts *alerting.AlertService, metrics *ingest.MetricsService,
	h *hub.Hub, logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{
		alerts:  alerts,
		metrics: metrics,
		hub:     h,
		logger:  logger,
	}
}

// RegisterRoutes registers monitoring routes. The stream route is registered
// separately by the router because it must bypass the request timeout.
func (h *MonitoringHandler) RegisterRoutes(router chi.Router) {
	router.Route("/monitoring", func(r chi.Router) {
		r.Get("/metrics", h.GetMetrics)
		r.Get("/alerts", h.ListAlerts)
		r.Get("/alerts/{alertID}", h.GetAlert)
		r.Post("/alerts/{alertID}/acknowledge", h.AcknowledgeAlert)
		r.Post("/alerts/{alertID}/resolve", h.ResolveAlert)
	})
}

// GetMetrics returns samples for a timeframe, grouped by metric type.
func (h *MonitoringHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	timeframe := model.MetricTimeframe(r.URL.Query().Get("timeframe"))
	metricType := r.URL.Query().Get("metric_type")

	report, err := h.metrics.Query(ctx, timeframe, metricType)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to query metrics")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(report, "Metrics retrieved successfully"))
}

// ListAlerts returns recent alerts plus per-severity and per-status counts.
func (h *MonitoringHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := alerting.AlertListFilter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	alerts, stats, err := h.alerts.List(ctx, filter)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list alerts")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"alerts": alerts,
		"stats":  stats,
	}, "Alerts retrieved successfully"))
}

// GetAlert returns a single alert.
func (h *MonitoringHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alertID, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid alert ID format")
		return
	}

	alert, err := h.alerts.Get(ctx, alertID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get alert")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(alert, "Alert retrieved successfully"))
}

// AcknowledgeAlert marks an alert as seen by the acting operator.
func (h *MonitoringHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alertID, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid alert ID format")
		return
	}

	alert, err := h.alerts.Acknowledge(ctx, alertID, actorFrom(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to acknowledge alert")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(alert, "Alert acknowledged"))
}

// ResolveAlert closes an alert.
func (h *MonitoringHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alertID, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid alert ID format")
		return
	}

	alert, err := h.alerts.Resolve(ctx, alertID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to resolve alert")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(alert, "Alert resolved"))
}

// Stream is the SSE endpoint. Each connection gets a fresh subscription; a
// reconnect is indistinguishable from a new subscribe, and the first frame is
// always the connected acknowledgment.
func (h *MonitoringHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError,
			fmt.Errorf("streaming unsupported by connection"), "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer sub.Close()

	util.Debug("Stream session started", zap.String("subscription_id", sub.ID))

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				util.Error("Failed to encode stream message", zap.Error(err))
				continue
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
