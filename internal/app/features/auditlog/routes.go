// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit log routes (typically at "/audit").
// Access is restricted to admins and superadmins.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(authz.RequireAnyRole(authz.RoleAdmin, authz.RoleSuperAdmin))

		pr.Get("/", h.ServeList)
		pr.Get("/categories", h.ServeCategories)
		pr.Get("/recent", h.ServeRecent)
		pr.Get("/actors/{actorID}", h.ServeActor)
		pr.Get("/force-merges", h.ServeForceMerges)
	})

	return r
}
