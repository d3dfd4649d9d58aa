// Package api wires the HTTP routes for the PainScope server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/painscope/painscope/internal/api/middleware"
	"github.com/painscope/painscope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateFlow http.HandlerFunc
	ListFlows  http.HandlerFunc
	GetFlow    http.HandlerFunc
	DeleteFlow http.HandlerFunc

	Ingest http.HandlerFunc

	StartAnalysis  http.HandlerFunc
	CancelAnalysis http.HandlerFunc
	AnalysisStatus http.HandlerFunc

	EditCluster         http.HandlerFunc
	DeleteCluster       http.HandlerFunc
	MergeClusters       http.HandlerFunc
	DeleteClusterMember http.HandlerFunc
	DeleteItem          http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/flows", orNotImplemented(deps.CreateFlow))
		r.Get("/api/v1/flows", orNotImplemented(deps.ListFlows))
		r.Get("/api/v1/flows/{flowID}", orNotImplemented(deps.GetFlow))
		r.Delete("/api/v1/flows/{flowID}", orNotImplemented(deps.DeleteFlow))

		r.Post("/api/v1/flows/{flowID}/ingest", orNotImplemented(deps.Ingest))

		r.Post("/api/v1/flows/{flowID}/analyze", orNotImplemented(deps.StartAnalysis))
		r.Post("/api/v1/flows/{flowID}/analyze/cancel", orNotImplemented(deps.CancelAnalysis))
		r.Get("/api/v1/flows/{flowID}/analysis-status", orNotImplemented(deps.AnalysisStatus))

		r.Post("/api/v1/flows/{flowID}/clusters/merge", orNotImplemented(deps.MergeClusters))
		r.Patch("/api/v1/flows/{flowID}/clusters/{clusterID}", orNotImplemented(deps.EditCluster))
		r.Delete("/api/v1/flows/{flowID}/clusters/{clusterID}", orNotImplemented(deps.DeleteCluster))
		r.Delete("/api/v1/flows/{flowID}/clusters/{clusterID}/members/{memberID}", orNotImplemented(deps.DeleteClusterMember))

		r.Delete("/api/v1/flows/{flowID}/items/{itemID}", orNotImplemented(deps.DeleteItem))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
