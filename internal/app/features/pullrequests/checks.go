// internal/app/features/pullrequests/checks.go
package pullrequests

import (
	"net/http"
	"strings"

	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.uber.org/zap"
)

// ServeListChecks handles GET /pull-requests/{id}/status-checks.
func (h *Handler) ServeListChecks(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list status checks")
	defer cancel()

	checks, err := h.Checks.ListForPR(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "list status checks", err)
		return
	}
	if checks == nil {
		checks = []models.StatusCheck{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"checks": checks})
}

type checkRequest struct {
	Context     string `json:"context"`
	State       string `json:"state"`
	Description string `json:"description"`
}

// ServeReportCheck handles POST /pull-requests/{id}/status-checks.
// CI integrations report with a maintainer credential.
func (h *Handler) ServeReportCheck(w http.ResponseWriter, r *http.Request) {
	role, _, userID, _ := authz.UserCtx(r)
	if !authz.CanManageProtection(role) {
		respond.Forbidden(w, "reporting status checks requires a maintainer")
		return
	}
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req checkRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "report status check")
	defer cancel()

	if _, err := h.Flow.PullRequest(ctx, id); err != nil {
		h.ErrLog.Write(w, r, "report status check", err)
		return
	}
	check, err := h.Checks.Report(ctx, models.StatusCheck{
		PullRequestID: id,
		Context:       req.Context,
		State:         strings.ToLower(strings.TrimSpace(req.State)),
		Description:   req.Description,
		ReportedBy:    userID,
	})
	if err != nil {
		h.ErrLog.Write(w, r, "report status check", err)
		return
	}
	h.Log.Info("status check reported",
		zap.String("pull_request_id", id.Hex()),
		zap.String("context", check.Context),
		zap.String("state", check.State))
	respond.JSON(w, http.StatusOK, check)
}
