// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for ReviewHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: REVIEWHUB_MONGO_URI, REVIEWHUB_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "reviewhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Credentials
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "HMAC secret for bearer tokens (must be strong in production)"},
	{Name: "session_key", Default: "", Desc: "Session signing key of the login UI (blank disables the cookie fallback)"},
	{Name: "session_name", Default: "reviewhub-session", Desc: "Session cookie name"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for the token revocation list (blank disables revocation checks)"},

	// Status checks
	{Name: "status_provider", Default: "store", Desc: "Status check source: 'store', 'http' or 'none'"},
	{Name: "status_http_url", Default: "", Desc: "CI API base URL for the http status provider"},
	{Name: "status_oauth_client_id", Default: "", Desc: "OAuth2 client ID for the CI API"},
	{Name: "status_oauth_client_secret", Default: "", Desc: "OAuth2 client secret for the CI API"},
	{Name: "status_oauth_token_url", Default: "", Desc: "OAuth2 token URL for the CI API"},

	// Branch freshness
	{Name: "repos_dir", Default: "", Desc: "Directory of project repositories (<dir>/<projectId>.git); blank skips up-to-date checks"},

	// Audit logging settings
	{Name: "audit_log_merge", Default: "all", Desc: "Merge event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Real-time transport
	{Name: "ws_send_buffer", Default: 64, Desc: "Outbound event queue length per websocket connection"},
	{Name: "ws_ping_interval", Default: "25s", Desc: "Websocket ping interval; a peer silent for twice this is dropped"},
	{Name: "ws_events_per_second", Default: 20, Desc: "Inbound websocket events allowed per connection per second (negative disables)"},

	// Background workers
	{Name: "room_idle_after", Default: "30m", Desc: "Mark a room inactive after nobody has viewed it for this long"},
	{Name: "room_idle_interval", Default: "5m", Desc: "How often the idle-room sweep runs"},
	{Name: "notification_retention", Default: "720h", Desc: "Delete read notifications older than this (0 disables)"},

	// CORS
	{Name: "cors_origins", Default: "", Desc: "Comma-separated list of allowed browser origins"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, REVIEWHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "REVIEWHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret:   appValues.String("jwt_secret"),
		SessionKey:  appValues.String("session_key"),
		SessionName: appValues.String("session_name"),
		RedisURL:    appValues.String("redis_url"),

		StatusProvider:          strings.ToLower(strings.TrimSpace(appValues.String("status_provider"))),
		StatusHTTPURL:           appValues.String("status_http_url"),
		StatusOAuthClientID:     appValues.String("status_oauth_client_id"),
		StatusOAuthClientSecret: appValues.String("status_oauth_client_secret"),
		StatusOAuthTokenURL:     appValues.String("status_oauth_token_url"),

		ReposDir: appValues.String("repos_dir"),

		AuditLogMerge: appValues.String("audit_log_merge"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		WSSendBuffer:      appValues.Int("ws_send_buffer"),
		WSPingInterval:    appValues.Duration("ws_ping_interval", 25*time.Second),
		WSEventsPerSecond: appValues.Int("ws_events_per_second"),

		RoomIdleAfter:         appValues.Duration("room_idle_after", 30*time.Minute),
		RoomIdleInterval:      appValues.Duration("room_idle_interval", 5*time.Minute),
		NotificationRetention: appValues.Duration("notification_retention", 30*24*time.Hour),

		CORSOrigins: splitList(appValues.String("cors_origins")),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret is required")
	}

	switch appCfg.StatusProvider {
	case "store", "none":
	case "http":
		if appCfg.StatusHTTPURL == "" {
			return fmt.Errorf("status_provider 'http' requires status_http_url")
		}
	default:
		return fmt.Errorf("unknown status_provider %q (want store, http or none)", appCfg.StatusProvider)
	}

	for key, v := range map[string]string{"audit_log_merge": appCfg.AuditLogMerge, "audit_log_admin": appCfg.AuditLogAdmin} {
		switch v {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be one of all, db, log, off (got %q)", key, v)
		}
	}

	if appCfg.RoomIdleAfter <= 0 || appCfg.RoomIdleInterval <= 0 {
		return fmt.Errorf("room_idle_after and room_idle_interval must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
