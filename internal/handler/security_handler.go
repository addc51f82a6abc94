package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/model"
	"monitor-engine/internal/security"
)

// SecurityHandler serves the security event lifecycle operations.
type SecurityHandler struct {
	events *security.EventService
	logger *zap.Logger
}

func NewSecurityHandler(events *security.EventService, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		events: events,
		logger: logger,
	}
}

func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/security", func(r chi.Router) {
		r.Get("/events", h.ListEvents)
		r.Post("/events", h.ReportEvent)
		r.Get("/events/{eventID}", h.GetEvent)
		r.Post("/events/{eventID}/resolve", h.ResolveEvent)
		r.Post("/events/{eventID}/reopen", h.ReopenEvent)
		r.Post("/events/{eventID}/block-ip", h.BlockIP)
		r.Delete("/events/{eventID}", h.DeleteEvent)
		r.Get("/blocked-ips", h.ListBlockedIPs)
	})
}

func eventIDFrom(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "eventID"))
}

// ListEvents returns events matching the status filter (default: active).
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := security.EventListFilter{
		Status: model.EventStatusFilter(r.URL.Query().Get("status")),
	}
	if threatStr := r.URL.Query().Get("threat_level"); threatStr != "" {
		threat, err := strconv.Atoi(threatStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid threat level")
			return
		}
		filter.MinThreat = threat
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	events, summary, err := h.events.List(ctx, filter)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list security events")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"events":  events,
		"summary": summary,
	}, "Security events retrieved successfully"))
}

// ReportEvent records a new security event from a detector.
func (h *SecurityHandler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event model.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	created, err := h.events.Report(ctx, &event)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to record security event")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(created, "Security event recorded"))
}

func (h *SecurityHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := eventIDFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid event ID format")
		return
	}

	event, err := h.events.Get(ctx, eventID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get security event")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(event, "Security event retrieved successfully"))
}

// ResolveEvent closes an active event with optional notes.
func (h *SecurityHandler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := eventIDFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid event ID format")
		return
	}

	var req struct {
		ResolutionNotes string `json:"resolution_notes"`
		ResolvedBy      string `json:"resolved_by"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = actorFrom(r)
	}

	event, err := h.events.Resolve(ctx, eventID, req.ResolutionNotes, req.ResolvedBy)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to resolve security event")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(event, "Security event resolved"))
}

// ReopenEvent returns a resolved event to active.
func (h *SecurityHandler) ReopenEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := eventIDFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid event ID format")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	event, err := h.events.Reopen(ctx, eventID, req.Reason, actorFrom(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to reopen security event")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(event, "Security event reopened"))
}

// BlockIP blocks the event's source address and projects the event to
// blocked.
func (h *SecurityHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := eventIDFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid event ID format")
		return
	}

	var req struct {
		IPAddress   string `json:"ip_address"`
		BlockReason string `json:"block_reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	event, err := h.events.BlockSource(ctx, eventID, req.IPAddress, req.BlockReason, actorFrom(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to block source IP")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(event, "Source IP blocked"))
}

// DeleteEvent hard-deletes an event. The deletion itself is audited.
func (h *SecurityHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := eventIDFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid event ID format")
		return
	}

	if err := h.events.Delete(ctx, eventID, actorFrom(r)); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to delete security event")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Security event deleted"))
}

func (h *SecurityHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.events.ListBlockedIPs(ctx)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list blocked IPs")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(entries, "Blocked IPs retrieved successfully"))
}
