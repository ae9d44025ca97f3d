package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is an optional dependency checked alongside MongoDB, such as the
// Redis revocation list.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports live collaboration counts.
type StatsSource interface {
	Stats() presence.Stats
}

// RoomCounter counts rooms still marked active in the database.
type RoomCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client   *mongo.Client
	Redis    Pinger
	Presence StatsSource
	Rooms    RoomCounter
	Log      *zap.Logger
}

// NewHandler constructs a health Handler. redis, stats and rooms may be nil.
func NewHandler(client *mongo.Client, redis Pinger, stats StatsSource, rooms RoomCounter, logger *zap.Logger) *Handler {
	return &Handler{
		Client:   client,
		Redis:    redis,
		Presence: stats,
		Rooms:    rooms,
		Log:      logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string          `json:"status"`
	Database string          `json:"database"`
	Redis    string          `json:"redis,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Presence *presence.Stats `json:"presence,omitempty"`

	// ActiveRooms counts durable rooms not yet marked idle, live or not.
	ActiveRooms *int64 `json:"activeRooms,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "redis":"connected",
//	  "presence":{"connections":3,"rooms":2}, "activeRooms":5 }
//
// On DB or Redis failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	// Check database
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	// Tokens cannot be verified without the revocation list.
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx); err != nil {
			h.Log.Error("health-check: redis ping failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			resp.Status = "error"
			resp.Redis = "disconnected"
			resp.Message = "Redis unavailable"
			resp.Error = err.Error()
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp.Redis = "connected"
	}

	if h.Presence != nil {
		st := h.Presence.Stats()
		resp.Presence = &st
	}
	if h.Rooms != nil {
		n, err := h.Rooms.CountActive(ctx)
		if err != nil {
			h.Log.Warn("health-check: count active rooms failed", zap.Error(err))
		} else {
			resp.ActiveRooms = &n
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
