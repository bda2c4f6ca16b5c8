// Package handlers implements the HTTP API surface: account
// provisioning, name pool management, and audit queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/provio-systems/provio/internal/middleware"
	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/provisioning"
	"github.com/provio-systems/provio/pkg/httputil"
	"github.com/provio-systems/provio/pkg/logging"
)

const defaultPageLimit = 50

// AccountHandler serves the credential provisioning endpoints.
type AccountHandler struct {
	service *provisioning.Service
	logger  *logging.Logger
}

func NewAccountHandler(service *provisioning.Service, logger *logging.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// requestContext captures the caller metadata attached to audit events.
func requestContext(r *http.Request) models.RequestContext {
	return models.RequestContext{
		IPAddress: httputil.GetClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
		Timestamp: time.Now().UTC(),
	}
}

// writeServiceError maps orchestrator error codes to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	code := provisioning.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case provisioning.CodeValidationFailed:
		status = http.StatusBadRequest
	case provisioning.CodeDuplicateCredential:
		status = http.StatusConflict
	case provisioning.CodeNotFound:
		status = http.StatusNotFound
	}
	httputil.WriteError(w, status, code, provisioning.MessageOf(err))
}

// accountView strips the password envelope from API responses. The
// stored envelope is only reachable through the reveal endpoint.
type accountView struct {
	ID           string               `json:"id"`
	Platform     models.Platform      `json:"platform"`
	Username     string               `json:"username"`
	Demographics *models.Demographics `json:"demographics,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func toAccountView(cred *models.Credential) accountView {
	return accountView{
		ID:           cred.ID,
		Platform:     cred.Platform,
		Username:     cred.Username,
		Demographics: cred.Demographics,
		CreatedAt:    cred.CreatedAt,
		UpdatedAt:    cred.UpdatedAt,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	result, err := h.service.CreateOne(r.Context(), actorID, req, requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"account":         toAccountView(result.Account),
		"username_source": result.UsernameSource,
	})
}

func (h *AccountHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	var req models.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	result, err := h.service.CreateBatch(r.Context(), actorID, req, requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	accounts := make([]accountView, 0, len(result.Accounts))
	for _, cred := range result.Accounts {
		accounts = append(accounts, toAccountView(cred))
	}

	// 207 when the batch partially failed so clients inspect per-item
	// errors instead of assuming a clean run.
	status := http.StatusCreated
	if result.Summary.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"success":  result.Success,
		"accounts": accounts,
		"errors":   result.Errors,
		"summary":  result.Summary,
	})
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	id := r.PathValue("id")

	cred, err := h.service.Get(r.Context(), actorID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": toAccountView(cred)})
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	q := r.URL.Query()

	page := models.Pagination{
		Offset: httputil.ParseIntParam(q.Get("offset"), 0),
		Limit:  httputil.ParseIntParam(q.Get("limit"), defaultPageLimit),
	}
	platform := models.Platform(q.Get("platform"))

	creds, total, err := h.service.List(r.Context(), actorID, platform, page)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	accounts := make([]accountView, 0, len(creds))
	for _, cred := range creds {
		accounts = append(accounts, toAccountView(cred))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"total":    total,
		"offset":   page.Offset,
		"limit":    page.Limit,
	})
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	id := r.PathValue("id")

	var req models.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	cred, err := h.service.Update(r.Context(), actorID, id, req, requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": toAccountView(cred)})
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	id := r.PathValue("id")

	if err := h.service.Delete(r.Context(), actorID, id, requestContext(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reveal decrypts and returns the stored password. Every call is
// audited as an export event.
func (h *AccountHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	id := r.PathValue("id")

	plaintext, err := h.service.RevealPassword(r.Context(), actorID, id, requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"password": plaintext})
}
