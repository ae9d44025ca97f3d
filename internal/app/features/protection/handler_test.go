package protection_test

import (
	"net/http"
	"testing"

	"github.com/dalemusser/reviewhub/internal/app/features/protection"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/indexes"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/reviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) (*protection.Handler, *audit.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	auditStore := audit.New(db)
	al := auditlog.New(auditStore, zap.NewNop(), auditlog.Config{Merge: "db", Admin: "db"})
	return protection.NewHandler(protectionstore.New(db), al, zap.NewNop()), auditStore
}

func TestServeGet_LazyDefaults(t *testing.T) {
	h, _ := newHandler(t)
	projectID := primitive.NewObjectID().Hex()
	user := testutil.MaintainerUser()

	rec := testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?branchPattern=main", nil, user))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID+"&branchPattern=main", nil, user))
	rec.AssertStatus(t, http.StatusOK)

	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)
	if rule.RequiredReviewers != 2 || !rule.RequiredStatusChecks.Strict || !rule.IsActive {
		t.Errorf("unexpected defaults: %+v", rule)
	}
	if len(rule.RequiredStatusChecks.Contexts) != 2 || rule.AllowForcePushes || rule.AllowDeletions {
		t.Errorf("unexpected defaults: %+v", rule)
	}

	rec = testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID, nil, user))
	rec.AssertStatus(t, http.StatusOK)
	var list struct {
		Rules []models.BranchProtectionRule `json:"rules"`
	}
	rec.DecodeJSON(t, &list)
	if len(list.Rules) != 1 || list.Rules[0].ID != rule.ID {
		t.Errorf("list = %+v", list.Rules)
	}
}

func TestServeGet_ReaderSeesDefaultsWithoutPersisting(t *testing.T) {
	h, _ := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	projectID := primitive.NewObjectID()
	reader := testutil.MemberUser("viewer")

	rec := testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID.Hex()+"&branchPattern=*", nil, reader))
	rec.AssertStatus(t, http.StatusOK)
	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)
	if !rule.ID.IsZero() || rule.BranchPattern != "*" || rule.RequiredReviewers != models.DefaultRequiredReviewers {
		t.Errorf("expected unsaved defaults, got %+v", rule)
	}

	rec = testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID.Hex(), nil, reader))
	rec.AssertStatus(t, http.StatusOK)
	var list struct {
		Rules []models.BranchProtectionRule `json:"rules"`
	}
	rec.DecodeJSON(t, &list)
	if len(list.Rules) != 1 || list.Rules[0].BranchPattern != models.DefaultBranchPattern || !list.Rules[0].ID.IsZero() {
		t.Errorf("expected the unsaved default branch rule, got %+v", list.Rules)
	}

	if _, err := h.Rules.FindMatching(ctx, projectID, "main"); err != protectionstore.ErrNotFound {
		t.Errorf("a read must not protect a branch, FindMatching err = %v", err)
	}
	stored, err := h.Rules.ListByProject(ctx, projectID, true)
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected no stored rules, got %d", len(stored))
	}
}

func TestServeGet_ReaderDoesNotRestoreDeactivatedRule(t *testing.T) {
	h, _ := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	projectID := primitive.NewObjectID()

	rec := testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID.Hex()+"&branchPattern=release", nil, testutil.MaintainerUser()))
	rec.AssertStatus(t, http.StatusOK)
	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)
	if rule.ID.IsZero() {
		t.Fatal("maintainer read should materialize the rule")
	}
	if _, err := h.Rules.Deactivate(ctx, rule.ID, "maintainer"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	rec = testutil.NewRecorder()
	h.ServeGet(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules?projectId="+projectID.Hex()+"&branchPattern=release", nil, testutil.MemberUser("viewer")))
	rec.AssertStatus(t, http.StatusOK)

	if _, err := h.Rules.FindMatching(ctx, projectID, "release"); err != protectionstore.ErrNotFound {
		t.Errorf("deactivated rule came back, FindMatching err = %v", err)
	}
}

func TestServeUpsert_PartialAndForbidden(t *testing.T) {
	h, auditStore := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	projectID := primitive.NewObjectID().Hex()

	body := map[string]any{"projectId": projectID, "branchPattern": "main", "requiredReviewers": 15}

	rec := testutil.NewRecorder()
	h.ServeUpsert(rec, testutil.NewAuthenticatedRequest(t, "PUT", "/rules", body, testutil.MemberUser("m")))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	h.ServeUpsert(rec, testutil.NewAuthenticatedRequest(t, "PUT", "/rules", body, testutil.MaintainerUser()))
	rec.AssertStatus(t, http.StatusOK)
	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)
	if rule.RequiredReviewers != 10 {
		t.Errorf("requiredReviewers = %d, want clamped 10", rule.RequiredReviewers)
	}

	rec = testutil.NewRecorder()
	h.ServeUpsert(rec, testutil.NewAuthenticatedRequest(t, "PUT", "/rules", map[string]any{
		"projectId":            projectID,
		"branchPattern":        "main",
		"requiredStatusChecks": map[string]any{"contexts": []string{"ci/lint"}},
	}, testutil.AdminUser()))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &rule)
	if rule.RequiredReviewers != 10 {
		t.Errorf("unspecified field reset: requiredReviewers = %d", rule.RequiredReviewers)
	}
	if len(rule.RequiredStatusChecks.Contexts) != 1 || rule.RequiredStatusChecks.Contexts[0] != "ci/lint" || !rule.RequiredStatusChecks.Strict {
		t.Errorf("status checks = %+v", rule.RequiredStatusChecks)
	}

	n, _ := auditStore.CountByFilter(ctx, audit.QueryFilter{EventType: audit.EventRuleUpdated})
	if n != 2 {
		t.Errorf("rule update audit events = %d, want 2", n)
	}
}

func TestServeCreate_Conflict(t *testing.T) {
	h, _ := newHandler(t)
	projectID := primitive.NewObjectID().Hex()
	admin := testutil.AdminUser()
	body := map[string]any{"projectId": projectID, "branchPattern": "release/*", "requireReviews": false}

	rec := testutil.NewRecorder()
	h.ServeCreate(rec, testutil.NewAuthenticatedRequest(t, "POST", "/rules", body, admin))
	rec.AssertStatus(t, http.StatusCreated)
	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)
	if rule.RequireReviews || rule.RequiredReviewers != 2 || rule.CreatedBy != admin.ID {
		t.Errorf("unexpected rule: %+v", rule)
	}

	rec = testutil.NewRecorder()
	h.ServeCreate(rec, testutil.NewAuthenticatedRequest(t, "POST", "/rules", body, admin))
	rec.AssertStatus(t, http.StatusConflict)

	rec = testutil.NewRecorder()
	h.ServeCreate(rec, testutil.NewAuthenticatedRequest(t, "POST", "/rules", map[string]any{"projectId": projectID}, admin))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeDeactivate_KeepsHistory(t *testing.T) {
	h, _ := newHandler(t)
	projectID := primitive.NewObjectID().Hex()
	admin := testutil.AdminUser()

	rec := testutil.NewRecorder()
	h.ServeCreate(rec, testutil.NewAuthenticatedRequest(t, "POST", "/rules",
		map[string]any{"projectId": projectID, "branchPattern": "main"}, admin))
	rec.AssertStatus(t, http.StatusCreated)
	var rule models.BranchProtectionRule
	rec.DecodeJSON(t, &rule)

	del := func(user testutil.TestUser) *testutil.ResponseRecorder {
		rec := testutil.NewRecorder()
		req := testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(t, "DELETE", "/rules/x", nil, user), "id", rule.ID.Hex())
		h.ServeDeactivate(rec, req)
		return rec
	}
	del(testutil.MemberUser("m")).AssertStatus(t, http.StatusForbidden)
	del(admin).AssertStatus(t, http.StatusOK)
	del(admin).AssertStatus(t, http.StatusNotFound)

	rec = testutil.NewRecorder()
	h.ServeHistory(rec, testutil.NewAuthenticatedRequest(t, "GET", "/rules/history?projectId="+projectID, nil, admin))
	rec.AssertStatus(t, http.StatusOK)
	var hist struct {
		Rules []models.BranchProtectionRule `json:"rules"`
	}
	rec.DecodeJSON(t, &hist)
	if len(hist.Rules) != 1 || hist.Rules[0].IsActive {
		t.Errorf("history = %+v", hist.Rules)
	}

	rec = testutil.NewRecorder()
	h.ServeCreate(rec, testutil.NewAuthenticatedRequest(t, "POST", "/rules",
		map[string]any{"projectId": projectID, "branchPattern": "main"}, admin))
	rec.AssertStatus(t, http.StatusCreated)
}

func TestRoutes_RequireSignedIn(t *testing.T) {
	h, _ := newHandler(t)
	rec := testutil.NewRecorder()
	protection.Routes(h).ServeHTTP(rec, testutil.NewRequest("GET", "/rules?projectId="+primitive.NewObjectID().Hex()))
	rec.AssertStatus(t, http.StatusUnauthorized)
}
