// internal/app/features/pullrequests/comments.go
package pullrequests

import (
	"net/http"

	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
)

type commentRequest struct {
	Text       string `json:"text"`
	FilePath   string `json:"filePath"`
	LineNumber *int   `json:"lineNumber"`
}

// ServeAddComment handles POST /pull-requests/{id}/comments.
func (h *Handler) ServeAddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	var req commentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if req.LineNumber != nil && *req.LineNumber < 1 {
		respond.BadRequest(w, "lineNumber must be positive")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "add comment")
	defer cancel()

	c, err := h.Flow.AddComment(ctx, auditlog.ActorFromRequest(r), id, mergeflow.CommentInput{
		Text:       req.Text,
		FilePath:   req.FilePath,
		LineNumber: req.LineNumber,
	})
	if err != nil {
		h.ErrLog.Write(w, r, "add comment", err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

type commentUpdateRequest struct {
	Text     *string `json:"text"`
	Resolved *bool   `json:"resolved"`
}

// ServeUpdateComment handles PATCH /pull-requests/{id}/comments/{commentID}.
func (h *Handler) ServeUpdateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	commentID, ok := objectIDParam(w, r, "commentID")
	if !ok {
		return
	}
	var req commentUpdateRequest
	if err := respond.Decode(r, &req); err != nil || (req.Text == nil && req.Resolved == nil) {
		respond.BadRequest(w, "text or resolved is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update comment")
	defer cancel()

	c, err := h.Flow.UpdateComment(ctx, auditlog.ActorFromRequest(r), id, commentID, prstore.CommentUpdate{
		Text:     req.Text,
		Resolved: req.Resolved,
	})
	if err != nil {
		h.ErrLog.Write(w, r, "update comment", err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

// ServeDeleteComment handles DELETE /pull-requests/{id}/comments/{commentID}.
func (h *Handler) ServeDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}
	commentID, ok := objectIDParam(w, r, "commentID")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete comment")
	defer cancel()

	if err := h.Flow.DeleteComment(ctx, auditlog.ActorFromRequest(r), id, commentID); err != nil {
		h.ErrLog.Write(w, r, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
