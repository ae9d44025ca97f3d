// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/reviewhub/internal/app/features/auditlog"
	collabfeature "github.com/dalemusser/reviewhub/internal/app/features/collab"
	healthfeature "github.com/dalemusser/reviewhub/internal/app/features/health"
	notificationsfeature "github.com/dalemusser/reviewhub/internal/app/features/notifications"
	protectionfeature "github.com/dalemusser/reviewhub/internal/app/features/protection"
	pullrequestsfeature "github.com/dalemusser/reviewhub/internal/app/features/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. ReviewHub applies CORS and credential
// loading globally and mounts one router per feature.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.services

	r := chi.NewRouter()

	if len(appCfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   appCfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Global auth middleware: loads the verified caller into context when a
	// credential is presented. Feature routers decide whether one is required.
	r.Use(svc.auth.LoadUser)

	// Health check endpoint for load balancers and orchestrators
	var redis healthfeature.Pinger
	if deps.Revocations != nil {
		redis = deps.Revocations
	}
	healthHandler := healthfeature.NewHandler(deps.MongoClient, redis, svc.registry, svc.rooms, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Real-time channel
	svc.collab = collabfeature.NewHandler(svc.auth, svc.registry, svc.flow, collabfeature.Options{
		PingInterval:    appCfg.WSPingInterval,
		EventsPerSecond: appCfg.WSEventsPerSecond,
		CheckOrigin:     originChecker(appCfg.CORSOrigins),
	}, logger)
	r.Mount("/ws", collabfeature.Routes(svc.collab))

	// Pull requests: protection status, merges, reviews, comments
	prHandler := pullrequestsfeature.NewHandler(svc.flow, svc.checks, svc.audit, svc.rooms, svc.registry, logger)
	r.Mount("/pull-requests", pullrequestsfeature.Routes(prHandler))

	// Branch protection rules
	protectionHandler := protectionfeature.NewHandler(svc.rules, svc.auditLog, logger)
	r.Mount("/branch-protection", protectionfeature.Routes(protectionHandler))

	// Notifications for the signed-in user
	notesHandler := notificationsfeature.NewHandler(svc.notes, logger)
	r.Mount("/notifications", notificationsfeature.Routes(notesHandler))

	// Project-wide audit trail (admins)
	auditHandler := auditlogfeature.NewHandler(svc.audit, logger)
	r.Mount("/audit", auditlogfeature.Routes(auditHandler))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.NotFound(w, "no such endpoint")
	})

	return r, nil
}

// originChecker allows a websocket handshake from any configured origin.
// With none configured the upgrader's same-origin check applies.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}
