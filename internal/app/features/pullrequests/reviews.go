// internal/app/features/pullrequests/reviews.go
package pullrequests

import (
	"net/http"

	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/reviewhub/internal/domain/models"
)

type reviewRequest struct {
	Decision models.Decision `json:"decision"`
	Comment  string          `json:"comment"`
}

// ServeSubmitReview handles POST /pull-requests/{id}/reviews.
func (h *Handler) ServeSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "submit review")
	defer cancel()

	pr, err := h.Flow.SubmitReview(ctx, auditlog.ActorFromRequest(r), id, req.Decision, req.Comment)
	if err != nil {
		h.ErrLog.Write(w, r, "submit review", err)
		return
	}
	respond.JSON(w, http.StatusOK, pr)
}

type reviewersRequest struct {
	Reviewers []models.AssignedReviewer `json:"reviewers"`
}

// ServeAssignReviewers handles POST /pull-requests/{id}/reviewers.
func (h *Handler) ServeAssignReviewers(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req reviewersRequest
	if err := respond.Decode(r, &req); err != nil || len(req.Reviewers) == 0 {
		respond.BadRequest(w, "reviewers are required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "assign reviewers")
	defer cancel()

	pr, err := h.Flow.AssignReviewers(ctx, auditlog.ActorFromRequest(r), id, req.Reviewers)
	if err != nil {
		h.ErrLog.Write(w, r, "assign reviewers", err)
		return
	}
	respond.JSON(w, http.StatusOK, pr)
}
