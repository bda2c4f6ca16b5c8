package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/namepool"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/pkg/httputil"
	"github.com/provio-systems/provio/pkg/logging"
)

// NamesHandler serves name pool management endpoints.
type NamesHandler struct {
	pool   *namepool.Pool
	store  repository.NamePoolStore
	logger *logging.Logger
}

func NewNamesHandler(pool *namepool.Pool, store repository.NamePoolStore, logger *logging.Logger) *NamesHandler {
	return &NamesHandler{pool: pool, store: store, logger: logger}
}

type addNameRequest struct {
	Name     string          `json:"name"`
	Platform models.Platform `json:"platform"`
}

func (h *NamesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	candidate, err := h.pool.Add(r.Context(), req.Name, req.Platform, models.NameSourceManual)
	if err != nil {
		if errors.Is(err, repository.ErrNameCandidateExists) {
			httputil.WriteError(w, http.StatusConflict, "DUPLICATE_NAME", "name already in pool")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"name": candidate})
}

type bulkNamesRequest struct {
	Names []namepool.Entry `json:"names"`
}

// BulkAdd imports names best-effort: malformed and duplicate entries
// are counted, never abort the import.
func (h *NamesHandler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	var req bulkNamesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if len(req.Names) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "names must not be empty")
		return
	}

	report, err := h.pool.BulkAdd(r.Context(), req.Names)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bulk name import failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "IMPORT_FAILED", "bulk import failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *NamesHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountNames(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "count failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}
