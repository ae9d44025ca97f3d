// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/paging"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServeList handles GET /audit with optional filters:
// category, eventType, actorId, pullRequestId, projectId,
// startDate and endDate (YYYY-MM-DD, end date inclusive), page and limit.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := authz.UserCtx(r); !ok {
		respond.Unauthorized(w)
		return
	}
	if !authz.IsAdmin(r) {
		respond.Forbidden(w, "audit log is restricted to administrators")
		return
	}

	filter, msg := parseFilter(r)
	if msg != "" {
		respond.BadRequest(w, msg)
		return
	}
	p := paging.Parse(r)
	filter.Limit = int64(p.Limit)
	filter.Offset = p.Skip()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Store.Query(ctx, filter)
	if err != nil {
		h.ErrLog.Write(w, r, "audit log list", err)
		return
	}
	total, err := h.Store.CountByFilter(ctx, filter)
	if err != nil {
		h.ErrLog.Write(w, r, "audit log count", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	respond.JSON(w, http.StatusOK, listResponse{
		Events:     events,
		Pagination: paging.NewMeta(p, total),
	})
}

// ServeCategories handles GET /audit/categories.
func (h *Handler) ServeCategories(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		respond.Forbidden(w, "audit log is restricted to administrators")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"categories": allCategories()})
}

// parseFilter reads the query string. A non-empty message means the request
// is malformed.
func parseFilter(r *http.Request) (audit.QueryFilter, string) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("eventType")),
		ActorID:   strings.TrimSpace(q.Get("actorId")),
	}

	if filter.Category != "" && eventTypesForCategory(filter.Category) == nil {
		return filter, "unknown category"
	}
	if filter.EventType != "" && !validEventType(filter.Category, filter.EventType) {
		return filter, "unknown eventType"
	}

	if s := strings.TrimSpace(q.Get("pullRequestId")); s != "" {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return filter, "invalid pullRequestId"
		}
		filter.PullRequestID = &id
	}
	if s := strings.TrimSpace(q.Get("projectId")); s != "" {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return filter, "invalid projectId"
		}
		filter.ProjectID = &id
	}

	if s := strings.TrimSpace(q.Get("startDate")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return filter, "invalid startDate"
		}
		filter.StartTime = &t
	}
	if s := strings.TrimSpace(q.Get("endDate")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return filter, "invalid endDate"
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	}
	return filter, ""
}
