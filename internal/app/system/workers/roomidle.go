// internal/app/system/workers/roomidle.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RoomStore is the durable room state the idle sweeper maintains.
type RoomStore interface {
	Touch(ctx context.Context, prIDs []primitive.ObjectID) error
	MarkIdle(ctx context.Context, cutoff time.Time, live []primitive.ObjectID) (int64, error)
}

// LiveRooms reports which rooms currently have connected members.
type LiveRooms interface {
	LiveRooms() []primitive.ObjectID
}

// RoomIdle is a background worker that marks rooms inactive once nobody has
// been connected to them for a while. Rooms with live members are touched on
// every pass so they never age out.
type RoomIdle struct {
	rooms         RoomStore
	live          LiveRooms
	log           *zap.Logger
	interval      time.Duration
	idleThreshold time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewRoomIdle creates a new idle-room worker.
//
// Parameters:
//   - rooms: the durable room store
//   - live: the presence registry
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 minute)
//   - idleThreshold: how long a room must be empty before it is marked inactive (e.g., 10 minutes)
func NewRoomIdle(rooms RoomStore, live LiveRooms, logger *zap.Logger, interval, idleThreshold time.Duration) *RoomIdle {
	return &RoomIdle{
		rooms:         rooms,
		live:          live,
		log:           logger,
		interval:      interval,
		idleThreshold: idleThreshold,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *RoomIdle) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("room idle worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("idle_threshold", w.idleThreshold))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *RoomIdle) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("room idle worker stopped")
}

func (w *RoomIdle) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *RoomIdle) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	live := w.live.LiveRooms()
	if err := w.rooms.Touch(ctx, live); err != nil {
		w.log.Error("failed to touch live rooms", zap.Error(err))
		return
	}

	count, err := w.rooms.MarkIdle(ctx, time.Now().UTC().Add(-w.idleThreshold), live)
	if err != nil {
		w.log.Error("failed to mark idle rooms", zap.Error(err))
		return
	}

	if count > 0 {
		w.log.Info("marked rooms idle", zap.Int64("count", count), zap.Int("live", len(live)))
	}
}
