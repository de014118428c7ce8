package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/workflows", h.StartWorkflow)
		r.Get("/workflows/stats", h.WorkflowStats)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/cancel", h.CancelWorkflow)

		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/clear", h.ClearCache)
		r.Post("/cache/cleanup", h.CleanupCache)
	})
}
