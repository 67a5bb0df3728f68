// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app. Clients are nil
// for in-memory backends.
//
// Services is allocated by ConnectDB and filled in by Startup; the lifecycle
// passes DBDeps by value, so later hooks reach the same services through
// the pointer.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *redis.Client

	Services *Services
}
