package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/scale", h.HandleScale)
		r.Get("/limits", h.HandleGetLimits)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.HandleListEvents)
			r.Get("/summary", h.HandleGetEventSummary)
		})
	})
}
