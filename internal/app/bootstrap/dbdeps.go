// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Revocations is nil when no redis_url is configured.
	Revocations *auth.RedisRevocations

	// services is allocated by ConnectDB and filled in by Startup so that
	// BuildHandler and Shutdown see the same instances.
	services *services
}
