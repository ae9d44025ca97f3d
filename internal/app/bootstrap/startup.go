// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	collabfeature "github.com/dalemusser/reviewhub/internal/app/features/collab"
	"github.com/dalemusser/reviewhub/internal/app/policy/mergepolicy"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	notificationstore "github.com/dalemusser/reviewhub/internal/app/store/notifications"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	roomstore "github.com/dalemusser/reviewhub/internal/app/store/rooms"
	checkstore "github.com/dalemusser/reviewhub/internal/app/store/statuschecks"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/gitrepo"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/notify"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/statuschecks"
	"github.com/dalemusser/reviewhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// services are the long-lived components shared by the HTTP handlers and
// torn down in Shutdown.
type services struct {
	auth      *auth.Authenticator
	audit     *audit.Store
	auditLog  *auditlog.Logger
	rooms     *roomstore.Store
	rules     *protectionstore.Store
	checks    *checkstore.Store
	registry  *presence.Registry
	notes     *notify.Dispatcher
	flow      *mergeflow.Service
	roomIdle  *workers.RoomIdle
	retention *workers.NotificationRetention
	collab    *collabfeature.Handler
}

// Startup builds the services after DB connections and schema setup are
// complete, and starts the background workers.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase
	svc := deps.services

	authCfg := auth.Config{
		JWTSecret:   appCfg.JWTSecret,
		SessionKey:  appCfg.SessionKey,
		SessionName: appCfg.SessionName,
	}
	if deps.Revocations != nil {
		authCfg.Revocations = deps.Revocations
	}
	authn, err := auth.NewAuthenticator(authCfg, logger)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	svc.auth = authn

	svc.audit = audit.New(db)
	svc.auditLog = auditlog.New(svc.audit, logger, auditlog.Config{
		Merge: appCfg.AuditLogMerge,
		Admin: appCfg.AuditLogAdmin,
	})
	svc.rooms = roomstore.New(db)
	svc.rules = protectionstore.New(db)
	svc.checks = checkstore.New(db)

	svc.registry = presence.New(svc.rooms, logger, presence.Options{SendBuffer: appCfg.WSSendBuffer})
	notes := notificationstore.New(db)
	svc.notes = notify.New(notes, svc.registry, logger)

	provider, err := statusProvider(appCfg, svc.checks)
	if err != nil {
		return err
	}
	gatherer := &mergepolicy.Gatherer{Checks: provider, Log: logger}
	if appCfg.ReposDir != "" {
		gatherer.Freshness = gitrepo.New(appCfg.ReposDir)
	}
	logger.Info("merge policy inputs",
		zap.String("status_provider", appCfg.StatusProvider),
		zap.Bool("freshness_checks", appCfg.ReposDir != ""))

	svc.flow = mergeflow.New(mergeflow.Deps{
		Client:      deps.MongoClient,
		PRs:         prstore.New(db),
		Rules:       svc.rules,
		Audit:       svc.audit,
		AuditLog:    svc.auditLog,
		Gatherer:    gatherer,
		Broadcaster: svc.registry,
		Notifier:    svc.notes,
		Log:         logger,
	})

	svc.roomIdle = workers.NewRoomIdle(svc.rooms, svc.registry, logger, appCfg.RoomIdleInterval, appCfg.RoomIdleAfter)
	svc.roomIdle.Start()
	if appCfg.NotificationRetention > 0 {
		svc.retention = workers.NewNotificationRetention(notes, logger, time.Hour, appCfg.NotificationRetention)
		svc.retention.Start()
	}
	return nil
}

// statusProvider selects where status check states come from.
func statusProvider(appCfg AppConfig, checks *checkstore.Store) (statuschecks.Provider, error) {
	switch appCfg.StatusProvider {
	case "http":
		p, err := statuschecks.NewHTTPProvider(statuschecks.HTTPConfig{
			BaseURL:      appCfg.StatusHTTPURL,
			ClientID:     appCfg.StatusOAuthClientID,
			ClientSecret: appCfg.StatusOAuthClientSecret,
			TokenURL:     appCfg.StatusOAuthTokenURL,
		})
		if err != nil {
			return nil, fmt.Errorf("status provider: %w", err)
		}
		return p, nil
	case "none":
		return statuschecks.Unavailable{}, nil
	default:
		return statuschecks.NewStoreProvider(checks), nil
	}
}
