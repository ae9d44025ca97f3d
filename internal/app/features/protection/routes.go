// internal/app/features/protection/routes.go
package protection

import (
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the rule endpoints (typically at "/branch-protection").
// Reads need a signed-in user; writes also need a maintainer or admin,
// checked in the handlers.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/rules", h.ServeGet)
	r.Get("/rules/history", h.ServeHistory)
	r.Put("/rules", h.ServeUpsert)
	r.Post("/rules", h.ServeCreate)
	r.Delete("/rules/{id}", h.ServeDeactivate)

	return r
}
