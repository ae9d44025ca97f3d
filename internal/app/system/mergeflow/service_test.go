package mergeflow_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dalemusser/reviewhub/internal/app/policy/mergepolicy"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	notificationstore "github.com/dalemusser/reviewhub/internal/app/store/notifications"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	checkstore "github.com/dalemusser/reviewhub/internal/app/store/statuschecks"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/indexes"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/notify"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/statuschecks"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/reviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type roomRecorder struct {
	mu       sync.Mutex
	events   []presence.Event
	comments []string
}

func (r *roomRecorder) BroadcastRoom(_ primitive.ObjectID, ev presence.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return 1
}

func (r *roomRecorder) BroadcastComment(_ primitive.ObjectID, event string, _ presence.CommentPayload) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, event)
	return 1
}

type env struct {
	svc      *mergeflow.Service
	prs      *prstore.Store
	audit    *audit.Store
	notes    *notify.Dispatcher
	rooms    *roomRecorder
	fixtures *testutil.Fixtures
	db       *mongo.Database
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	e := &env{
		prs:      prstore.New(db),
		audit:    audit.New(db),
		notes:    notify.New(notificationstore.New(db), nil, zap.NewNop()),
		rooms:    &roomRecorder{},
		fixtures: testutil.NewFixtures(t, db),
		db:       db,
	}
	e.svc = mergeflow.New(mergeflow.Deps{
		Client:      db.Client(),
		PRs:         e.prs,
		Rules:       protectionstore.New(db),
		Audit:       e.audit,
		AuditLog:    auditlog.New(e.audit, zap.NewNop(), auditlog.Config{Merge: "all", Admin: "all"}),
		Gatherer:    &mergepolicy.Gatherer{Checks: statuschecks.NewStoreProvider(checkstore.New(db))},
		Broadcaster: e.rooms,
		Notifier:    e.notes,
	})
	return e
}

func actor(u testutil.TestUser) auditlog.Actor {
	return auditlog.Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// twoApprovalRule protects main with two required reviewers and no status checks.
func twoApprovalRule(r *models.BranchProtectionRule) {
	r.RequiredReviewers = 2
	r.RequiredStatusChecks = models.RequiredStatusChecks{Strict: true}
}

func TestEndToEnd_ApprovalsUnlockMerge(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := testutil.MemberUser("author")
	projectID := primitive.NewObjectID()
	e.fixtures.CreateRule(ctx, projectID, "main", twoApprovalRule)
	pr := e.fixtures.CreatePullRequest(ctx, author.ID, author.Name, testutil.WithProject(projectID))

	_, v, err := e.svc.ProtectionStatus(ctx, pr.ID)
	if err != nil {
		t.Fatalf("ProtectionStatus failed: %v", err)
	}
	if !v.Protected || v.CanMerge {
		t.Fatalf("expected protected and blocked, got %+v", v)
	}
	if want := []string{"Requires 2 approvals, has 0"}; !reflect.DeepEqual(v.Violations, want) {
		t.Errorf("violations = %v, want %v", v.Violations, want)
	}

	r1, r2 := testutil.MemberUser("rev1"), testutil.MemberUser("rev2")
	got, err := e.svc.SubmitReview(ctx, actor(r1), pr.ID, models.DecisionApproved, "")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if got.Status != models.StatusReviewing {
		t.Errorf("status after first approval = %q, want reviewing", got.Status)
	}
	got, err = e.svc.SubmitReview(ctx, actor(r2), pr.ID, models.DecisionApproved, "lgtm")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status after second approval = %q, want approved", got.Status)
	}

	_, v, _ = e.svc.ProtectionStatus(ctx, pr.ID)
	if !v.CanMerge || len(v.Violations) != 0 {
		t.Fatalf("expected mergeable, got %+v", v)
	}

	merged, err := e.svc.Merge(ctx, actor(author), pr.ID, models.MergeMethodSquash)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Status != models.StatusMerged || merged.MergeMethod != models.MergeMethodSquash || merged.ForceMerged {
		t.Errorf("unexpected merged PR: %+v", merged)
	}

	n, _ := e.audit.CountByFilter(ctx, audit.QueryFilter{PullRequestID: &pr.ID, EventType: audit.EventMerged})
	if n != 1 {
		t.Errorf("merged audit events = %d, want 1", n)
	}
	if len(e.rooms.events) == 0 || e.rooms.events[len(e.rooms.events)-1].Name != presence.EventStatusChanged {
		t.Error("status change should be broadcast to the room")
	}
}

func TestMerge_BlockedByPolicy(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	projectID := primitive.NewObjectID()
	e.fixtures.CreateRule(ctx, projectID, "main", twoApprovalRule)
	pr := e.fixtures.CreatePullRequest(ctx, "author", "author",
		testutil.WithProject(projectID),
		testutil.WithStatus(models.StatusApproved),
		testutil.WithDecisions(testutil.Approval("r1", "rev1"), testutil.ChangesRequested("r2", "rev2")))

	_, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, pr.ID, "")
	var pv *mergeflow.PolicyViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
	want := []string{"Requires 2 approvals, has 1 (approved by: rev1)", "Changes requested by: rev2"}
	if !reflect.DeepEqual(pv.Violations, want) {
		t.Errorf("violations = %v, want %v", pv.Violations, want)
	}

	got, _ := e.prs.GetByID(ctx, pr.ID)
	if got.Status != models.StatusApproved {
		t.Errorf("blocked merge changed status to %q", got.Status)
	}
	n, _ := e.audit.CountByFilter(ctx, audit.QueryFilter{PullRequestID: &pr.ID, EventType: audit.EventMergeBlocked})
	if n != 1 {
		t.Errorf("blocked audit events = %d, want 1", n)
	}
}

func TestMerge_FailingStatusChecks(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	projectID := primitive.NewObjectID()
	e.fixtures.CreateRule(ctx, projectID, "main", func(r *models.BranchProtectionRule) {
		r.RequiredReviewers = 1
		r.RequiredStatusChecks = models.RequiredStatusChecks{Strict: false, Contexts: []string{"ci/tests"}}
	})
	pr := e.fixtures.CreatePullRequest(ctx, "author", "author",
		testutil.WithProject(projectID),
		testutil.WithStatus(models.StatusApproved),
		testutil.WithDecisions(testutil.Approval("r1", "rev1")))

	_, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, pr.ID, "")
	var pv *mergeflow.PolicyViolationError
	if !errors.As(err, &pv) || pv.Violations[0] != "Required status checks not passing: ci/tests" {
		t.Fatalf("expected failing check violation, got %v", err)
	}

	checks := checkstore.New(e.db)
	if _, err := checks.Report(ctx, models.StatusCheck{PullRequestID: pr.ID, Context: "ci/tests", State: models.CheckSuccess}); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, pr.ID, ""); err != nil {
		t.Fatalf("Merge after green checks failed: %v", err)
	}
}

func TestMerge_UnprotectedAndTransitions(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	open := e.fixtures.CreatePullRequest(ctx, "author", "author")
	var te *mergeflow.TransitionError
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, open.ID, ""); !errors.As(err, &te) {
		t.Errorf("merge from open should be a transition error, got %v", err)
	}

	approved := e.fixtures.CreatePullRequest(ctx, "author", "author", testutil.WithStatus(models.StatusApproved))
	_, v, _ := e.svc.ProtectionStatus(ctx, approved.ID)
	if v.Protected || !v.CanMerge {
		t.Errorf("unprotected branch verdict = %+v", v)
	}
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, approved.ID, "octopus"); err != mergeflow.ErrInvalidMergeMethod {
		t.Errorf("expected ErrInvalidMergeMethod, got %v", err)
	}
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, approved.ID, ""); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, approved.ID, ""); !errors.As(err, &te) {
		t.Errorf("second merge should be a transition error, got %v", err)
	}
	if _, err := e.svc.Merge(ctx, auditlog.Actor{ID: "author"}, primitive.NewObjectID(), ""); err != prstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestForceMerge_Authorization(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pr := e.fixtures.CreatePullRequest(ctx, "author", "author", testutil.WithStatus(models.StatusRejected))

	if _, err := e.svc.ForceMerge(ctx, actor(testutil.AdminUser()), pr.ID, "too short", ""); err != mergeflow.ErrReasonTooShort {
		t.Errorf("expected ErrReasonTooShort, got %v", err)
	}
	for _, u := range []testutil.TestUser{testutil.MemberUser("m"), testutil.MaintainerUser()} {
		if _, err := e.svc.ForceMerge(ctx, actor(u), pr.ID, "production is down, hotfix", ""); err != mergeflow.ErrForbidden {
			t.Errorf("%s: expected ErrForbidden, got %v", u.Role, err)
		}
	}

	got, _ := e.prs.GetByID(ctx, pr.ID)
	if got.Status != models.StatusRejected {
		t.Errorf("denied force merge changed status to %q", got.Status)
	}
	denied, _ := e.audit.CountByFilter(ctx, audit.QueryFilter{PullRequestID: &pr.ID, EventType: audit.EventForceMergeDenied})
	if denied != 2 {
		t.Errorf("denied audit events = %d, want 2", denied)
	}
}

func TestForceMerge_WritesOneAuditRecord(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	projectID := primitive.NewObjectID()
	e.fixtures.CreateRule(ctx, projectID, "main", twoApprovalRule)
	pr := e.fixtures.CreatePullRequest(ctx, "author", "author",
		testutil.WithProject(projectID),
		testutil.WithStatus(models.StatusReviewing))

	admin := testutil.AdminUser()
	reason := "  Production outage; hotfix reviewed in the incident call.  "
	res, err := e.svc.ForceMerge(ctx, actor(admin), pr.ID, reason, models.MergeMethodRebase)
	if err != nil {
		t.Fatalf("ForceMerge failed: %v", err)
	}
	if res.PullRequest.Status != models.StatusMerged || !res.PullRequest.ForceMerged {
		t.Errorf("unexpected PR: %+v", res.PullRequest)
	}
	if res.AuditID.IsZero() {
		t.Error("audit id not returned")
	}
	if want := []string{"Requires 2 approvals, has 0"}; !reflect.DeepEqual(res.BypassedViolations, want) {
		t.Errorf("bypassed = %v, want %v", res.BypassedViolations, want)
	}

	events, err := e.audit.Query(ctx, audit.QueryFilter{PullRequestID: &pr.ID, EventType: audit.EventForceMerged})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("force merge audit records = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Reason != reason {
		t.Errorf("reason = %q, want verbatim %q", ev.Reason, reason)
	}
	if ev.ActorID != admin.ID || ev.ID != res.AuditID || ev.Timestamp.IsZero() {
		t.Errorf("unexpected audit record: %+v", ev)
	}
	if !reflect.DeepEqual(ev.BypassedViolations, res.BypassedViolations) {
		t.Errorf("audit bypassed = %v", ev.BypassedViolations)
	}

	if _, err := e.svc.ForceMerge(ctx, actor(admin), pr.ID, reason, ""); err == nil {
		t.Error("force merging a merged PR should fail")
	}
}

func TestForceMerge_ConcurrentAdmins(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pr := e.fixtures.CreatePullRequest(ctx, "author", "author")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.ForceMerge(ctx, actor(testutil.AdminUser()), pr.ID, "release blocker, approved by CTO", "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		var te *mergeflow.TransitionError
		switch {
		case err == nil:
			wins++
		case errors.Is(err, mergeflow.ErrStaleStatus), errors.As(err, &te):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("successful force merges = %d, want 1", wins)
	}
	count, _ := e.audit.CountByFilter(ctx, audit.QueryFilter{PullRequestID: &pr.ID, EventType: audit.EventForceMerged})
	if count != 1 {
		t.Errorf("force merge audit records = %d, want 1", count)
	}
}

func TestSubmitReview(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := testutil.MemberUser("author")
	pr := e.fixtures.CreatePullRequest(ctx, author.ID, author.Name)

	if _, err := e.svc.SubmitReview(ctx, actor(author), pr.ID, models.DecisionApproved, ""); err != mergeflow.ErrSelfReview {
		t.Errorf("expected ErrSelfReview, got %v", err)
	}
	rev := testutil.MemberUser("rev")
	if _, err := e.svc.SubmitReview(ctx, actor(rev), pr.ID, "maybe", ""); err != mergeflow.ErrInvalidDecision {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}

	got, err := e.svc.SubmitReview(ctx, actor(rev), pr.ID, models.DecisionChangesRequested, "<b>fix</b> this")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if got.Status != models.StatusReviewing {
		t.Errorf("status = %q, want reviewing", got.Status)
	}
	if got.ReviewDecisions[0].Comment != "fix this" {
		t.Errorf("review comment should be stripped of markup, got %q", got.ReviewDecisions[0].Comment)
	}

	got, err = e.svc.SubmitReview(ctx, actor(rev), pr.ID, models.DecisionRejected, "")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if got.Status != models.StatusRejected || len(got.ReviewDecisions) != 1 {
		t.Errorf("status = %q with %d decisions, want rejected with 1", got.Status, len(got.ReviewDecisions))
	}

	got, err = e.svc.SubmitReview(ctx, actor(rev), pr.ID, models.DecisionApproved, "")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("unprotected PR with one approval should be approved, got %q", got.Status)
	}

	page, _ := e.notes.ListForUser(ctx, author.ID, defaultPage())
	if page.Total == 0 {
		t.Error("author should be notified of status changes")
	}
}

func TestSetStatus(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := testutil.MemberUser("author")
	pr := e.fixtures.CreatePullRequest(ctx, author.ID, author.Name, testutil.WithStatus(models.StatusDraft))

	if _, err := e.svc.SetStatus(ctx, actor(testutil.MemberUser("other")), pr.ID, models.StatusOpen); err != mergeflow.ErrForbidden {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := e.svc.SetStatus(ctx, actor(author), pr.ID, models.StatusOpen); err != nil {
		t.Fatalf("SetStatus(open) failed: %v", err)
	}
	var te *mergeflow.TransitionError
	if _, err := e.svc.SetStatus(ctx, actor(author), pr.ID, models.StatusMerged); !errors.As(err, &te) {
		t.Errorf("merged via SetStatus should be refused, got %v", err)
	}
	if _, err := e.svc.SetStatus(ctx, actor(testutil.MaintainerUser()), pr.ID, models.StatusReviewing); err != nil {
		t.Fatalf("SetStatus(reviewing) failed: %v", err)
	}
	if _, err := e.svc.SetStatus(ctx, actor(author), pr.ID, models.StatusApproved); err != mergeflow.ErrForbidden {
		t.Errorf("author cannot approve directly, got %v", err)
	}
	closed, err := e.svc.SetStatus(ctx, actor(author), pr.ID, models.StatusClosed)
	if err != nil {
		t.Fatalf("SetStatus(closed) failed: %v", err)
	}
	if closed.Status != models.StatusClosed {
		t.Errorf("status = %q", closed.Status)
	}
	if _, err := e.svc.SetStatus(ctx, actor(author), pr.ID, models.StatusOpen); !errors.As(err, &te) {
		t.Errorf("closed is terminal, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.PRStatus
		want     bool
	}{
		{models.StatusDraft, models.StatusOpen, true},
		{models.StatusOpen, models.StatusApproved, false},
		{models.StatusReviewing, models.StatusRejected, true},
		{models.StatusApproved, models.StatusClosed, true},
		{models.StatusMerged, models.StatusClosed, false},
		{models.StatusOpen, models.StatusOpen, false},
	}
	for _, tt := range tests {
		if got := mergeflow.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
