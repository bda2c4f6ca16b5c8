package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/provio-systems/provio/internal/audit"
	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/pkg/httputil"
	"github.com/provio-systems/provio/pkg/logging"
)

// AuditHandler serves the audit trail query endpoints.
type AuditHandler struct {
	trail  *audit.Trail
	logger *logging.Logger
}

func NewAuditHandler(trail *audit.Trail, logger *logging.Logger) *AuditHandler {
	return &AuditHandler{trail: trail, logger: logger}
}

func parseEventFilter(r *http.Request) models.EventFilter {
	q := r.URL.Query()

	filter := models.EventFilter{
		ActorID:      q.Get("actor_id"),
		EventType:    models.EventType(q.Get("event_type")),
		Status:       models.EventStatus(q.Get("status")),
		EntityType:   q.Get("entity_type"),
		Platform:     models.Platform(q.Get("platform")),
		FlaggedOnly:  q.Get("flagged") == "true",
		MinRiskScore: httputil.ParseIntParam(q.Get("min_risk_score"), 0),
		SecuritySort: q.Get("sort") == "security",
	}

	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	return filter
}

func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := models.Pagination{
		Offset: httputil.ParseIntParam(q.Get("offset"), 0),
		Limit:  httputil.ParseIntParam(q.Get("limit"), defaultPageLimit),
	}

	result, err := h.trail.Query(r.Context(), parseEventFilter(r), page)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "audit query failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.trail.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "audit event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "audit get failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "audit lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

type flagRequest struct {
	Reasons   []string `json:"reasons"`
	RiskScore int      `json:"risk_score"`
}

// Flag marks an event as a security event. Flagged events become
// permanent and exempt from retention expiry.
func (h *AuditHandler) Flag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if len(req.Reasons) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "at least one reason is required")
		return
	}

	eventID := r.PathValue("id")
	if err := h.trail.MarkSecurityEvent(r.Context(), eventID, req.Reasons, req.RiskScore); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "audit event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "security flag failed", "event_id", eventID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "AUDIT_UPDATE_FAILED", "could not flag event")
		return
	}

	event, err := h.trail.GetEvent(r.Context(), eventID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit reload failed", "event_id", eventID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "could not reload event")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

// Stats aggregates events over a trailing window, default 30 days.
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := 30 * 24 * time.Hour
	if days := httputil.ParseIntParam(r.URL.Query().Get("window_days"), 0); days > 0 {
		window = time.Duration(days) * 24 * time.Hour
	}

	stats, err := h.trail.Stats(r.Context(), window, parseEventFilter(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit stats failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "audit stats failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
