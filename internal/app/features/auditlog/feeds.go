// internal/app/features/auditlog/feeds.go
package auditlog

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 500

	// force-merge feed window when no since date is given
	defaultForceMergeWindow = 30 * 24 * time.Hour
)

type feedResponse struct {
	Events []audit.Event `json:"events"`
}

func feedLimit(r *http.Request) int64 {
	n, err := strconv.ParseInt(query.Get(r, "limit"), 10, 64)
	if err != nil || n <= 0 {
		return defaultFeedLimit
	}
	if n > maxFeedLimit {
		return maxFeedLimit
	}
	return n
}

func (h *Handler) writeFeed(w http.ResponseWriter, r *http.Request, op string, events []audit.Event, err error) {
	if err != nil {
		h.ErrLog.Write(w, r, op, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respond.JSON(w, http.StatusOK, feedResponse{Events: events})
}

// ServeRecent handles GET /audit/recent?limit=, newest first.
func (h *Handler) ServeRecent(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		respond.Forbidden(w, "audit log is restricted to administrators")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit recent")
	defer cancel()

	events, err := h.Store.GetRecent(ctx, feedLimit(r))
	h.writeFeed(w, r, "audit recent", events, err)
}

// ServeActor handles GET /audit/actors/{actorID}?limit=.
func (h *Handler) ServeActor(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		respond.Forbidden(w, "audit log is restricted to administrators")
		return
	}
	actorID := strings.TrimSpace(chi.URLParam(r, "actorID"))
	if actorID == "" {
		respond.BadRequest(w, "actorID is required")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit by actor")
	defer cancel()

	events, err := h.Store.GetByActor(ctx, actorID, feedLimit(r))
	h.writeFeed(w, r, "audit by actor", events, err)
}

// ServeForceMerges handles GET /audit/force-merges?since=YYYY-MM-DD&limit=.
// Without since it covers the last 30 days.
func (h *Handler) ServeForceMerges(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		respond.Forbidden(w, "audit log is restricted to administrators")
		return
	}
	since := time.Now().UTC().Add(-defaultForceMergeWindow)
	if s := strings.TrimSpace(query.Get(r, "since")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			respond.BadRequest(w, "invalid since")
			return
		}
		since = t
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit force merges")
	defer cancel()

	events, err := h.Store.GetForceMerges(ctx, since, feedLimit(r))
	h.writeFeed(w, r, "audit force merges", events, err)
}
