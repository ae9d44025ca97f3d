package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/reviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testPR() *models.PullRequest {
	return &models.PullRequest{
		ID:           primitive.NewObjectID(),
		ProjectID:    primitive.NewObjectID(),
		TargetBranch: "main",
		Status:       models.StatusApproved,
	}
}

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.Merged(ctx, auditlog.Actor{ID: "u1"}, testPR(), models.MergeMethodMerge)
	logger.Recorded(audit.Event{EventType: audit.EventForceMerged})
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Merge: "off", Admin: "off"})
	pr := testPR()
	logger.Merged(ctx, auditlog.Actor{ID: "u1"}, pr, models.MergeMethodSquash)

	events, err := store.GetByPullRequest(ctx, pr.ID, 10)
	if err != nil {
		t.Fatalf("GetByPullRequest failed: %v", err)
	}
	if len(events) != 0 {
		t.Error("expected no events when config is 'off'")
	}
}

func TestLogger_Log_ConfigDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Merge: "db", Admin: "db"})
	pr := testPR()
	logger.MergeBlocked(ctx, auditlog.Actor{ID: "u1"}, pr, []string{"Requires 2 approvals, has 0"})

	events, err := store.GetByPullRequest(ctx, pr.ID, 10)
	if err != nil {
		t.Fatalf("GetByPullRequest failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Success {
		t.Error("blocked merge should be recorded as unsuccessful")
	}
	if events[0].Details["violations"] != "Requires 2 approvals, has 0" {
		t.Errorf("unexpected violations detail: %q", events[0].Details["violations"])
	}
}

func TestLogger_Log_ConfigLogOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zap.InfoLevel)
	logger := auditlog.New(store, zap.New(core), auditlog.Config{Merge: "log", Admin: "log"})
	rule := models.DefaultRule(primitive.NewObjectID(), "main")
	rule.ID = primitive.NewObjectID()
	logger.RuleCreated(ctx, auditlog.Actor{ID: "m1"}, &rule)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 zap entry, got %d", logs.Len())
	}
	n, err := store.CountByFilter(ctx, audit.QueryFilter{ActorID: "m1"})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing in db for 'log', got %d", n)
	}
}

func TestLogger_Recorded_ForceMergeIgnoresOff(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Merge: "off"})

	e := auditlog.ForceMergeEvent(auditlog.Actor{ID: "admin"}, testPR(), "CI outage, hotfix", models.MergeMethodMerge, nil)
	logger.Recorded(e)

	if logs.Len() != 1 {
		t.Errorf("force merge should always be logged, got %d entries", logs.Len())
	}
}

func TestForceMergeEvent(t *testing.T) {
	pr := testPR()
	bypassed := []string{"Requires 2 approvals, has 0"}
	e := auditlog.ForceMergeEvent(auditlog.Actor{ID: "admin", Name: "root", Role: "admin"}, pr, " keep  spacing ", models.MergeMethodRebase, bypassed)

	if e.Reason != " keep  spacing " {
		t.Errorf("reason must be verbatim, got %q", e.Reason)
	}
	if e.PullRequestID == nil || *e.PullRequestID != pr.ID {
		t.Error("pull request id not set")
	}
	if e.Details["prior_status"] != string(models.StatusApproved) {
		t.Errorf("prior_status = %q", e.Details["prior_status"])
	}
	bypassed[0] = "mutated"
	if e.BypassedViolations[0] == "mutated" {
		t.Error("bypassed violations should be copied")
	}
}

func TestActorFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/pull-requests/x/force-merge", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	req = auth.WithTestUser(req, &auth.User{ID: "u1", Name: "alice", Role: "admin"})

	a := auditlog.ActorFromRequest(req)
	if a.ID != "u1" || a.Name != "alice" || a.Role != "admin" {
		t.Errorf("unexpected actor: %+v", a)
	}
	if a.IP != "10.0.0.1" {
		t.Errorf("IP = %q, want first forwarded address", a.IP)
	}
}
