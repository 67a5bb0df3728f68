package indexes_test

import (
	"testing"

	"github.com/dalemusser/impacthub/internal/app/system/indexes"
	"github.com/dalemusser/impacthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func indexNames(t *testing.T, db *mongo.Database, collection string) map[string]bool {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			t.Fatalf("Decode index failed: %v", err)
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesNotificationIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, db, indexes.NotificationsCollection)
	for _, want := range []string{"idx_notifications_user_created", "idx_notifications_user_read"} {
		if !names[want] {
			t.Errorf("missing index %q on notifications", want)
		}
	}
}

func TestEnsureAll_AccountEmailIsUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	coll := db.Collection(indexes.AccountsCollection)
	if _, err := coll.InsertOne(ctx, bson.M{"_id": "a1", "email_ci": "ada@example.org"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := coll.InsertOne(ctx, bson.M{"_id": "a2", "email_ci": "ada@example.org"}); err == nil {
		t.Error("expected duplicate key error on second account with same email_ci")
	}
}

func TestEnsureAll_RenamesMisnamedIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection(indexes.NotificationsCollection)
	legacy := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(ctx, legacy); err != nil {
		t.Fatalf("create legacy index: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, db, indexes.NotificationsCollection)
	if names["user_id_1_read_1"] {
		t.Error("legacy auto-named index still present")
	}
	if !names["idx_notifications_user_read"] {
		t.Error("index not recreated under the desired name")
	}
}
