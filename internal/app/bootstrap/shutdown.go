// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the workers, closes live connections and tears down the
// back-end clients.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.services; svc != nil {
		if svc.roomIdle != nil {
			svc.roomIdle.Stop()
		}
		if svc.retention != nil {
			svc.retention.Stop()
		}
		if svc.collab != nil {
			svc.collab.Close()
		}
		if svc.registry != nil {
			logger.Info("closing live connections", zap.Int("connections", svc.registry.Stats().Connections))
			svc.registry.Close()
		}
	}

	if deps.Revocations != nil {
		if err := deps.Revocations.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting ReviewHub MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
