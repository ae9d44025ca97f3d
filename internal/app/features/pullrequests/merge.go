// internal/app/features/pullrequests/merge.go
package pullrequests

import (
	"net/http"

	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/reviewhub/internal/domain/models"
)

// ServeProtectionStatus handles GET /pull-requests/{id}/protection-status.
func (h *Handler) ServeProtectionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "protection status")
	defer cancel()

	_, verdict, err := h.Flow.ProtectionStatus(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "protection status", err)
		return
	}
	respond.JSON(w, http.StatusOK, verdict)
}

type mergeRequest struct {
	MergeMethod models.MergeMethod `json:"mergeMethod"`
}

// ServeMerge handles POST /pull-requests/{id}/merge.
// 200 with the merged pull request, or 400 with the violation list.
func (h *Handler) ServeMerge(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req mergeRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, "invalid request body")
			return
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "merge")
	defer cancel()

	pr, err := h.Flow.Merge(ctx, auditlog.ActorFromRequest(r), id, req.MergeMethod)
	if err != nil {
		h.ErrLog.Write(w, r, "merge", err)
		return
	}
	respond.JSON(w, http.StatusOK, pr)
}

type forceMergeRequest struct {
	Reason      string             `json:"reason"`
	MergeMethod models.MergeMethod `json:"mergeMethod"`
}

type forceMergeResponse struct {
	PullRequest        models.PullRequest `json:"pullRequest"`
	ForceMerged        bool               `json:"forceMerged"`
	AuditID            string             `json:"auditId"`
	BypassedViolations []string           `json:"bypassedViolations"`
}

// ServeForceMerge handles POST /pull-requests/{id}/force-merge.
// 200 with the merged pull request and the id of its audit record,
// 400 for a short reason, 403 for non-admins.
func (h *Handler) ServeForceMerge(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req forceMergeRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "force merge")
	defer cancel()

	res, err := h.Flow.ForceMerge(ctx, auditlog.ActorFromRequest(r), id, req.Reason, req.MergeMethod)
	if err != nil {
		h.ErrLog.Write(w, r, "force merge", err)
		return
	}
	respond.JSON(w, http.StatusOK, forceMergeResponse{
		PullRequest:        res.PullRequest,
		ForceMerged:        true,
		AuditID:            res.AuditID.Hex(),
		BypassedViolations: res.BypassedViolations,
	})
}

type statusRequest struct {
	Status models.PRStatus `json:"status"`
}

// ServeSetStatus handles PATCH /pull-requests/{id}/status.
func (h *Handler) ServeSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := respond.Decode(r, &req); err != nil || req.Status == "" {
		respond.BadRequest(w, "status is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "set status")
	defer cancel()

	pr, err := h.Flow.SetStatus(ctx, auditlog.ActorFromRequest(r), id, req.Status)
	if err != nil {
		h.ErrLog.Write(w, r, "set status", err)
		return
	}
	respond.JSON(w, http.StatusOK, pr)
}
