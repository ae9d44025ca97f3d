// internal/app/features/collab/handler.go
// Package collab is the real-time transport: it authenticates the websocket
// handshake, registers the connection with the presence registry and routes
// inbound client events.
package collab

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/limits"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/ratelimit"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Defaults for Options fields left zero.
const (
	DefaultPingInterval    = 25 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultReadLimit       = limits.MaxFrameSize
	DefaultEventsPerSecond = 20
)

// Authenticator verifies the handshake credential.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.User, error)
}

// PullRequests loads pull requests and persists comments, relaying them to
// the room.
type PullRequests interface {
	PullRequest(ctx context.Context, id primitive.ObjectID) (models.PullRequest, error)
	AddComment(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, in mergeflow.CommentInput) (models.Comment, error)
}

// Options tunes the transport.
type Options struct {
	PingInterval    time.Duration
	WriteWait       time.Duration
	ReadLimit       int64
	EventsPerSecond int
	// CheckOrigin overrides the upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	Auth     Authenticator
	Presence *presence.Registry
	PRs      PullRequests
	Limiter  *ratelimit.Limiter
	Log      *zap.Logger

	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler constructs a collab Handler. Call Close on shutdown to stop the
// rate limiter.
func NewHandler(a Authenticator, reg *presence.Registry, prs PullRequests, opts Options, logger *zap.Logger) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.EventsPerSecond == 0 {
		opts.EventsPerSecond = DefaultEventsPerSecond
	}
	return &Handler{
		Auth:     a,
		Presence: reg,
		PRs:      prs,
		Limiter:  ratelimit.New(opts.EventsPerSecond, time.Second),
		Log:      logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	h.Limiter.Stop()
}

// ServeWS handles GET /ws. The credential is verified before the upgrade;
// an unauthenticated caller gets a plain 401 and no connection is registered.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	u, err := h.Auth.Authenticate(r)
	if err != nil {
		h.Log.Info("websocket handshake rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		respond.Unauthorized(w)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Warn("websocket upgrade failed", zap.String("user_id", u.ID), zap.Error(err))
		return
	}

	actor := auditlog.ActorFromRequest(r.WithContext(auth.WithUser(r.Context(), u)))
	c := &client{
		h:     h,
		ws:    ws,
		conn:  h.Presence.Connect(u.ID, u.Name),
		actor: actor,
	}
	h.Log.Info("websocket connected",
		zap.String("user_id", u.ID),
		zap.String("conn_id", c.conn.ID))

	go c.writePump()
	c.readPump()
}
