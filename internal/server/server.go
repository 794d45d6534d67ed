// Package server is the HTTP surface of the checkout engine: a closed
// tool dispatch endpoint for agent callers, the embedded checkout
// JSON-RPC routes for UI callers, and the discovery and health
// endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltanReisoglu/UCP-AGENT/internal/binding"
	"github.com/AltanReisoglu/UCP-AGENT/internal/catalog"
	"github.com/AltanReisoglu/UCP-AGENT/internal/engine"
)

const serviceVersion = "2026-01-01"

type Server struct {
	engine  *engine.Engine
	catalog catalog.Catalog
	binding *binding.Binding
	baseURL string
	tools   map[string]toolFunc
}

func New(eng *engine.Engine, cat catalog.Catalog, bnd *binding.Binding, baseURL string) *Server {
	s := &Server{
		engine:  eng,
		catalog: cat,
		binding: bnd,
		baseURL: baseURL,
	}
	s.tools = s.toolTable()
	return s
}

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/ucp", s.handleDiscovery)

	r.Post("/tools/{tool}", s.dispatchTool)

	r.Route("/embedded-checkout/{checkout_id}", func(r chi.Router) {
		r.Post("/rpc", s.handleEmbeddedRPC)
		r.Get("/notifications", s.handleEmbeddedNotifications)
	})

	return otelhttp.NewHandler(r, "checkout-server")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDiscovery serves the service document agents fetch before
// calling any tool.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version": serviceVersion,
		"services": map[string]interface{}{
			"shopping": map[string]interface{}{
				"version": serviceVersion,
				"bindings": []map[string]string{
					{"type": "tools", "url": s.baseURL + "/tools"},
					{"type": "embedded-checkout", "url": s.baseURL + "/embedded-checkout"},
				},
			},
		},
	})
}
