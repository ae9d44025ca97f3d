// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the notification endpoints (typically at "/notifications").
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Get("/unread-count", h.ServeUnreadCount)
	r.Patch("/read-all", h.ServeMarkAllRead)
	r.Patch("/{id}/read", h.ServeMarkRead)
	r.Delete("/{id}", h.ServeDelete)

	return r
}
