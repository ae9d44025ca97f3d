package indexes_test

import (
	"testing"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/indexes"
	"github.com/dalemusser/reviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesRuleIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	cur, err := db.Collection("branch_protection_rules").Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	found := false
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if idx["name"] == "uniq_active_rule_project_pattern" {
			found = true
		}
	}
	if !found {
		t.Error("expected uniq_active_rule_project_pattern index")
	}
}

func TestEnsureAll_ActiveRuleUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	coll := db.Collection("branch_protection_rules")
	projectID := primitive.NewObjectID()
	doc := func(active bool) bson.M {
		return bson.M{
			"_id":            primitive.NewObjectID(),
			"project_id":     projectID,
			"branch_pattern": "main",
			"is_active":      active,
			"created_at":     time.Now(),
		}
	}

	if _, err := coll.InsertOne(ctx, doc(false)); err != nil {
		t.Fatalf("insert inactive: %v", err)
	}
	if _, err := coll.InsertOne(ctx, doc(false)); err != nil {
		t.Fatalf("inactive history rows must not conflict: %v", err)
	}
	if _, err := coll.InsertOne(ctx, doc(true)); err != nil {
		t.Fatalf("insert active: %v", err)
	}
	if _, err := coll.InsertOne(ctx, doc(true)); err == nil {
		t.Error("second active rule for same pattern should be rejected")
	}
}
