// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging level, body limits); this
// struct covers everything specific to ReviewHub.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Credentials
	JWTSecret   string // HMAC secret shared with the login service
	SessionKey  string // Optional: cookie-session fallback written by the login UI
	SessionName string

	// Token revocation list (blank disables revocation checks)
	RedisURL string

	// Status checks
	StatusProvider          string // "store", "http" or "none"
	StatusHTTPURL           string
	StatusOAuthClientID     string
	StatusOAuthClientSecret string
	StatusOAuthTokenURL     string

	// Root of the bare project repositories used for up-to-date checks.
	// Blank treats every branch as up to date.
	ReposDir string

	// Audit logging
	AuditLogMerge string
	AuditLogAdmin string

	// Real-time transport
	WSSendBuffer      int
	WSPingInterval    time.Duration
	WSEventsPerSecond int

	// Background workers
	RoomIdleAfter         time.Duration
	RoomIdleInterval      time.Duration
	NotificationRetention time.Duration

	// Allowed browser origins for REST and websocket calls
	CORSOrigins []string
}
