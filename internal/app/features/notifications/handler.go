// internal/app/features/notifications/handler.go
package notifications

import (
	"net/http"

	apierrors "github.com/dalemusser/reviewhub/internal/app/features/errors"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/notify"
	"github.com/dalemusser/reviewhub/internal/app/system/paging"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the caller's own notifications. Every operation is scoped
// to the signed-in recipient; other users' notifications read as not found.
type Handler struct {
	Notes  *notify.Dispatcher
	ErrLog *apierrors.ErrorLogger
	Log    *zap.Logger
}

// NewHandler constructs a notifications Handler.
func NewHandler(notes *notify.Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{
		Notes:  notes,
		ErrLog: apierrors.NewErrorLogger(logger),
		Log:    logger,
	}
}

type listResponse struct {
	Notifications []notify.Payload `json:"notifications"`
	UnreadCount   int64            `json:"unreadCount"`
	HasMore       bool             `json:"hasMore"`
	Pagination    paging.Meta      `json:"pagination"`
}

// ServeList handles GET /notifications?page=&limit=.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	p := paging.Parse(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list notifications")
	defer cancel()

	page, err := h.Notes.ListForUser(ctx, u.ID, p)
	if err != nil {
		h.ErrLog.Write(w, r, "list notifications", err)
		return
	}

	items := make([]notify.Payload, 0, len(page.Items))
	for _, n := range page.Items {
		items = append(items, notify.PayloadFor(n))
	}
	respond.JSON(w, http.StatusOK, listResponse{
		Notifications: items,
		UnreadCount:   page.UnreadCount,
		HasMore:       page.HasMore,
		Pagination:    paging.NewMeta(p, page.Total),
	})
}

// ServeUnreadCount handles GET /notifications/unread-count.
func (h *Handler) ServeUnreadCount(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "unread count")
	defer cancel()

	n, err := h.Notes.UnreadCount(ctx, u.ID)
	if err != nil {
		h.ErrLog.Write(w, r, "unread count", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"unreadCount": n})
}

// ServeMarkRead handles PATCH /notifications/{id}/read.
func (h *Handler) ServeMarkRead(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark notification read")
	defer cancel()

	n, err := h.Notes.MarkRead(ctx, id, u.ID)
	if err != nil {
		h.ErrLog.Write(w, r, "mark notification read", err)
		return
	}
	respond.JSON(w, http.StatusOK, notify.PayloadFor(n))
}

// ServeMarkAllRead handles PATCH /notifications/read-all.
func (h *Handler) ServeMarkAllRead(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark all notifications read")
	defer cancel()

	n, err := h.Notes.MarkAllRead(ctx, u.ID)
	if err != nil {
		h.ErrLog.Write(w, r, "mark all notifications read", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// ServeDelete handles DELETE /notifications/{id}.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete notification")
	defer cancel()

	if err := h.Notes.Delete(ctx, id, u.ID); err != nil {
		h.ErrLog.Write(w, r, "delete notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
