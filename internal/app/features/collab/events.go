// internal/app/features/collab/events.go
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Client-to-server event names.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventNewComment  = "new-comment"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// frame is one client-to-server message: {"event": name, "data": {...}}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// roomRequest names the pull request to join or leave. The room's project
// is taken from the stored pull request, never from the client.
type roomRequest struct {
	PullRequestID string `json:"pullRequestId"`
}

type commentRequest struct {
	PullRequestID string `json:"pullRequestId"`
	Comment       string `json:"comment"`
	LineNumber    *int   `json:"lineNumber"`
	FileID        string `json:"fileId"`
	FilePath      string `json:"filePath"`
}

type typingRequest struct {
	PullRequestID string `json:"pullRequestId"`
	LineNumber    *int   `json:"lineNumber"`
}

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errMissingData = errors.New("missing data")

func isDecodeError(err error) bool {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &typ)
}

func decodeData(f frame, v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return errMissingData
	}
	return json.Unmarshal(f.Data, v)
}

// dispatch routes one inbound frame. Errors go back to the sender as an
// error event; the connection stays open.
func (c *client) dispatch(f frame) {
	typing := f.Event == EventTypingStart || f.Event == EventTypingStop
	if !c.h.Limiter.Allow(c.conn.ID) {
		// Typing hints are advisory; drop them silently.
		if !typing {
			c.sendError(f.Event, "rate_limited", "too many events")
		}
		return
	}

	switch f.Event {
	case EventJoinRoom:
		c.join(f)
	case EventLeaveRoom:
		c.leave(f)
	case EventNewComment:
		c.newComment(f)
	case EventTypingStart, EventTypingStop:
		c.typing(f, f.Event == EventTypingStart)
	default:
		c.sendError(f.Event, "unknown_event", "unknown event")
	}
}

func (c *client) join(f frame) {
	var req roomRequest
	if err := decodeData(f, &req); err != nil {
		c.sendError(f.Event, "bad_request", "invalid payload")
		return
	}
	prID, err := primitive.ObjectIDFromHex(req.PullRequestID)
	if err != nil {
		c.sendError(f.Event, "bad_request", "invalid pullRequestId")
		return
	}

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Short(), c.h.Log, "collab join-room")
	defer cancel()

	pr, err := c.h.PRs.PullRequest(ctx, prID)
	if errors.Is(err, prstore.ErrNotFound) {
		c.sendError(f.Event, "not_found", "pull request not found")
		return
	}
	if err != nil {
		c.h.Log.Error("load pull request for join failed",
			zap.String("pull_request_id", prID.Hex()),
			zap.Error(err))
		c.sendError(f.Event, "join_failed", "could not join room")
		return
	}

	if _, err := c.h.Presence.Join(ctx, c.conn.UserID, pr.ID, pr.ProjectID); err != nil {
		c.h.Log.Error("join room failed",
			zap.String("user_id", c.conn.UserID),
			zap.String("pull_request_id", prID.Hex()),
			zap.Error(err))
		c.sendError(f.Event, "join_failed", "could not join room")
	}
}

func (c *client) leave(f frame) {
	var req roomRequest
	if err := decodeData(f, &req); err != nil {
		c.sendError(f.Event, "bad_request", "invalid payload")
		return
	}
	prID, err := primitive.ObjectIDFromHex(req.PullRequestID)
	if err != nil {
		c.sendError(f.Event, "bad_request", "invalid pullRequestId")
		return
	}
	c.h.Presence.Leave(c.conn.UserID, prID)
}

func (c *client) newComment(f frame) {
	var req commentRequest
	if err := decodeData(f, &req); err != nil {
		c.sendError(f.Event, "bad_request", "invalid payload")
		return
	}
	prID, err := primitive.ObjectIDFromHex(req.PullRequestID)
	if err != nil {
		c.sendError(f.Event, "bad_request", "invalid pullRequestId")
		return
	}
	path := req.FilePath
	if path == "" {
		path = req.FileID
	}

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Medium(), c.h.Log, "collab new-comment")
	defer cancel()

	_, err = c.h.PRs.AddComment(ctx, c.actor, prID, mergeflow.CommentInput{
		Text:       req.Comment,
		FilePath:   strings.TrimSpace(path),
		LineNumber: req.LineNumber,
	})
	switch {
	case err == nil:
	case errors.Is(err, mergeflow.ErrEmptyComment):
		c.sendError(f.Event, "validation", err.Error())
	case errors.Is(err, prstore.ErrNotFound):
		c.sendError(f.Event, "not_found", "pull request not found")
	default:
		c.h.Log.Error("add comment failed",
			zap.String("user_id", c.conn.UserID),
			zap.String("pull_request_id", prID.Hex()),
			zap.Error(err))
		c.sendError(f.Event, "internal", "could not save comment")
	}
}

func (c *client) typing(f frame, start bool) {
	var req typingRequest
	if err := decodeData(f, &req); err != nil {
		return
	}
	prID, err := primitive.ObjectIDFromHex(req.PullRequestID)
	if err != nil {
		return
	}
	c.h.Presence.BroadcastTyping(prID, c.conn.UserID, c.conn.Username, req.LineNumber, start)
}
