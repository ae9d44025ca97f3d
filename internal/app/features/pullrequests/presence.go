// internal/app/features/pullrequests/presence.go
package pullrequests

import (
	"errors"
	"net/http"

	roomstore "github.com/dalemusser/reviewhub/internal/app/store/rooms"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
)

type presenceResponse struct {
	PullRequestID string                 `json:"pullRequestId"`
	Count         int                    `json:"count"`
	Participants  []presence.Participant `json:"participants"`
	// Everyone who has ever joined the room, connected or not.
	History  []string `json:"history"`
	IsActive bool     `json:"isActive"`
}

// ServePresence handles GET /pull-requests/{id}/presence.
func (h *Handler) ServePresence(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r, "id")
	if !ok {
		return
	}

	live := h.Presence.Participants(id)
	resp := presenceResponse{
		PullRequestID: id.Hex(),
		Count:         len(live),
		Participants:  live,
		History:       []string{},
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "room lookup")
	defer cancel()

	room, err := h.Rooms.GetByPullRequest(ctx, id)
	switch {
	case err == nil:
		resp.History = room.Participants
		resp.IsActive = room.IsActive
	case !errors.Is(err, roomstore.ErrNotFound):
		h.ErrLog.Write(w, r, "room lookup", err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}
