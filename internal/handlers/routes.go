package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the API under /api on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.Health)
		api.Get("/ready", h.Ready)

		api.Post("/auth/register", h.Register)
		api.Post("/auth/login", h.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(h.AuthMiddleware)

			protected.Get("/expenses", h.ListExpenses)
			protected.Post("/expenses", h.CreateExpense)
			protected.Get("/expenses/stats", h.Statistics)
			protected.Put("/expenses/{id}", h.UpdateExpense)
			protected.Delete("/expenses/{id}", h.DeleteExpense)
		})
	})
}
