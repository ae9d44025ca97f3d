// internal/app/system/workers/notificationretention.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NotificationPurger deletes read notifications older than a cutoff.
type NotificationPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRetention periodically removes read notifications past their
// retention window. Unread notifications are kept regardless of age.
type NotificationRetention struct {
	store     NotificationPurger
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewNotificationRetention creates a new retention worker.
func NewNotificationRetention(store NotificationPurger, logger *zap.Logger, interval, retention time.Duration) *NotificationRetention {
	return &NotificationRetention{
		store:     store,
		log:       logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background purge loop.
func (w *NotificationRetention) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("notification retention worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *NotificationRetention) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("notification retention worker stopped")
}

func (w *NotificationRetention) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.purge()
		}
	}
}

func (w *NotificationRetention) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := w.store.DeleteOlderThan(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		w.log.Error("failed to purge notifications", zap.Error(err))
		return
	}

	if count > 0 {
		w.log.Info("purged read notifications", zap.Int64("count", count))
	}
}
