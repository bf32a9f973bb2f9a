// Package api serves the persisted snapshot to downstream viewers.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the read-only viewer endpoints.
func NewRouter(h *Handler, timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/aircraft", h.ListAircraft)
		r.Get("/aircraft/{hex}", h.GetAircraft)
		r.Get("/runs", h.ListRuns)
	})

	return r
}
