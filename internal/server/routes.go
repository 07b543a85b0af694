package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Snapshot of everything the widget shows
	r.Get("/control", s.getControl)

	// Overlay routes
	r.Route("/overlays", func(r chi.Router) {
		r.Get("/", s.listOverlays)

		r.Route("/{overlayID}", func(r chi.Router) {
			r.Get("/", s.getOverlay)
			r.Post("/activate", s.activateOverlay)
			r.Post("/deactivate", s.deactivateOverlay)
			r.Put("/opacity", s.setOverlayOpacity)
		})
	})

	// Group routes
	r.Route("/groups", func(r chi.Router) {
		r.Get("/", s.listGroups)
		r.Get("/{groupID}/visible", s.getGroupVisible)
		r.Put("/{groupID}/visible", s.setGroupVisible)
		r.Put("/{groupID}/opacity", s.setGroupOpacity)
	})

	// Base style routes
	r.Route("/bases", func(r chi.Router) {
		r.Get("/", s.listBases)
		r.Put("/active", s.setActiveBase)
	})

	// Camera
	r.Get("/viewport", s.getViewport)
	r.Post("/viewport", s.moveViewport)

	// Feature picks
	r.Post("/tooltip", s.resolveTooltip)

	// Persisted state
	r.Delete("/state", s.clearState)

	// Event streaming (SSE)
	r.Get("/event", s.events)

	// Operations
	r.Get("/healthz", s.health)
	r.Method("GET", "/metrics", promhttp.Handler())
}
