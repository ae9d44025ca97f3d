// internal/app/features/pullrequests/routes.go
package pullrequests

import (
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the pull request endpoints (typically at "/pull-requests").
// Every route requires a signed-in user.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Route("/{id}", func(pr chi.Router) {
		pr.Get("/protection-status", h.ServeProtectionStatus)
		pr.Post("/merge", h.ServeMerge)
		pr.Post("/force-merge", h.ServeForceMerge)
		pr.Patch("/status", h.ServeSetStatus)

		pr.Post("/reviews", h.ServeSubmitReview)
		pr.Post("/reviewers", h.ServeAssignReviewers)

		pr.Post("/comments", h.ServeAddComment)
		pr.Patch("/comments/{commentID}", h.ServeUpdateComment)
		pr.Delete("/comments/{commentID}", h.ServeDeleteComment)

		pr.Get("/presence", h.ServePresence)
		pr.Get("/status-checks", h.ServeListChecks)
		pr.Post("/status-checks", h.ServeReportCheck)
		pr.Get("/audit", h.ServeAudit)
	})

	return r
}
