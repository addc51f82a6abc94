package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"monitor-engine/internal/audit"
	"monitor-engine/internal/model"
)

// AuditHandler serves the audit query engine read path.
type AuditHandler struct {
	audit  *audit.Service
	logger *zap.Logger
}

func NewAuditHandler(service *audit.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  service,
		logger: logger,
	}
}

func (h *AuditHandler) RegisterRoutes(router chi.Router) {
	router.Route("/audit", func(r chi.Router) {
		r.Get("/logs", h.QueryLogs)
		r.Get("/stats", h.GetStats)
		r.Post("/export", h.Export)
	})
}

// parseDate accepts both date-only and RFC 3339 timestamps.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid date %q", model.ErrInvalidFilter, value)
}

func filterFromQuery(r *http.Request) (*model.AuditFilter, error) {
	q := r.URL.Query()

	filter := &model.AuditFilter{
		UserID:       q.Get("user_id"),
		ActionType:   q.Get("action_type"),
		ResourceType: q.Get("resource_type"),
		Severity:     q.Get("severity"),
		Status:       q.Get("status"),
		Search:       q.Get("search"),
	}

	var err error
	if filter.StartDate, err = parseDate(q.Get("start_date")); err != nil {
		return nil, err
	}
	if filter.EndDate, err = parseDate(q.Get("end_date")); err != nil {
		return nil, err
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if filter.Page, err = strconv.Atoi(pageStr); err != nil {
			return nil, fmt.Errorf("%w: invalid page", model.ErrInvalidFilter)
		}
	}
	if sizeStr := q.Get("page_size"); sizeStr != "" {
		if filter.PageSize, err = strconv.Atoi(sizeStr); err != nil {
			return nil, fmt.Errorf("%w: invalid page_size", model.ErrInvalidFilter)
		}
	}

	return filter, nil
}

// QueryLogs runs a filtered, paginated audit query.
func (h *AuditHandler) QueryLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Invalid audit filter")
		return
	}

	result, err := h.audit.Query(ctx, filter)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to query audit logs")
		return
	}

	response := successResponse(result.Entries, "Audit logs retrieved successfully")
	response.Meta = &Meta{
		Total:     result.Total,
		Page:      result.Page,
		PageSize:  result.PageSize,
		PageCount: result.PageCount,
	}
	respondWithJSON(w, http.StatusOK, response)
}

// GetStats returns the aggregate view for a timeframe (24h, 7d, 30d or 90d;
// anything else falls back to 7d).
func (h *AuditHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.audit.Stats(ctx, r.URL.Query().Get("timeframe"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to compute audit stats")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(stats, "Audit stats computed successfully"))
}

type exportRequest struct {
	Format       string `json:"format"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	UserID       string `json:"user_id"`
	ActionType   string `json:"action_type"`
	ResourceType string `json:"resource_type"`
	Severity     string `json:"severity"`
	Status       string `json:"status"`
	Search       string `json:"search"`
}

// Export streams a CSV or JSON report of every entry matching the filter.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	filter := &model.AuditFilter{
		UserID:       req.UserID,
		ActionType:   req.ActionType,
		ResourceType: req.ResourceType,
		Severity:     req.Severity,
		Status:       req.Status,
		Search:       req.Search,
	}

	var err error
	if filter.StartDate, err = parseDate(req.StartDate); err != nil {
		respondWithError(w, getStatusCode(err), err, "Invalid audit filter")
		return
	}
	if filter.EndDate, err = parseDate(req.EndDate); err != nil {
		respondWithError(w, getStatusCode(err), err, "Invalid audit filter")
		return
	}

	payload, contentType, err := h.audit.Export(ctx, filter, req.Format)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to export audit logs")
		return
	}

	ext := "csv"
	if contentType == "application/json" {
		ext = "json"
	}
	filename := fmt.Sprintf("audit-export-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.logger.Error("Failed to write export payload", zap.Error(err))
	}
}
