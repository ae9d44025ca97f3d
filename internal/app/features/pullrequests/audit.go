// internal/app/features/pullrequests/audit.go
package pullrequests

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
)

// ServeAudit handles GET /pull-requests/{id}/audit. Admin only.
func (h *Handler) ServeAudit(w http.ResponseWriter, r *http.Request) {
	role, _, _, _ := authz.UserCtx(r)
	if !authz.CanReadAudit(role) {
		respond.Forbidden(w, "the audit trail is restricted to admins")
		return
	}
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}

	limit := int64(100)
	if n, err := strconv.ParseInt(query.Get(r, "limit"), 10, 64); err == nil && n > 0 && n <= 500 {
		limit = n
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "pull request audit")
	defer cancel()

	events, err := h.Audit.GetByPullRequest(ctx, id, limit)
	if err != nil {
		h.ErrLog.Write(w, r, "pull request audit", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"events": events})
}
