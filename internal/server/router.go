// Package server wires the HTTP router and owns the server lifecycle.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/provio-systems/provio/internal/handlers"
	authmw "github.com/provio-systems/provio/internal/middleware"
	"github.com/provio-systems/provio/pkg/middleware"
)

// RouterDeps collects everything the router mounts.
type RouterDeps struct {
	Accounts *handlers.AccountHandler
	Audit    *handlers.AuditHandler
	Names    *handlers.NamesHandler
	Health   *handlers.HealthHandler

	Auth *authmw.AuthMiddleware
	// RateLimit wraps the manual provisioning endpoints only; batch and
	// read paths are not limited. Nil disables limiting.
	RateLimit func(http.HandlerFunc) http.HandlerFunc

	Registry *prometheus.Registry
}

// NewRouter constructs the ServeMux with all API routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	limited := func(h http.HandlerFunc) http.HandlerFunc {
		if deps.RateLimit == nil {
			return h
		}
		return deps.RateLimit(h)
	}
	auth := deps.Auth.RequireAuth

	// Account provisioning
	mux.HandleFunc("POST /api/v1/accounts", auth(limited(deps.Accounts.Create)))
	mux.HandleFunc("POST /api/v1/accounts/batch", auth(deps.Accounts.CreateBatch))
	mux.HandleFunc("GET /api/v1/accounts", auth(deps.Accounts.List))
	mux.HandleFunc("GET /api/v1/accounts/{id}", auth(deps.Accounts.Get))
	mux.HandleFunc("PUT /api/v1/accounts/{id}", auth(deps.Accounts.Update))
	mux.HandleFunc("PATCH /api/v1/accounts/{id}", auth(deps.Accounts.Update))
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", auth(deps.Accounts.Delete))
	mux.HandleFunc("POST /api/v1/accounts/{id}/reveal", auth(deps.Accounts.Reveal))

	// Name pool management
	mux.HandleFunc("POST /api/v1/names", auth(deps.Names.Add))
	mux.HandleFunc("POST /api/v1/names/bulk", auth(deps.Names.BulkAdd))
	mux.HandleFunc("GET /api/v1/names/count", auth(deps.Names.Count))

	// Audit trail
	mux.HandleFunc("GET /api/v1/audit/events", auth(deps.Audit.Query))
	mux.HandleFunc("GET /api/v1/audit/events/{id}", auth(deps.Audit.Get))
	mux.HandleFunc("POST /api/v1/audit/events/{id}/flag", auth(deps.Audit.Flag))
	mux.HandleFunc("GET /api/v1/audit/stats", auth(deps.Audit.Stats))

	// Operational endpoints (public)
	mux.HandleFunc("GET /healthz", deps.Health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Health.Readyz)
	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return middleware.RequestID(mux)
}
