package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// PROption customizes a pull request created by CreatePullRequest.
type PROption func(*models.PullRequest)

// WithStatus sets the pull request status.
func WithStatus(s models.PRStatus) PROption {
	return func(pr *models.PullRequest) { pr.Status = s }
}

// WithBranches sets source and target branches.
func WithBranches(source, target string) PROption {
	return func(pr *models.PullRequest) {
		pr.SourceBranch = source
		pr.TargetBranch = target
	}
}

// WithReviewers assigns reviewers.
func WithReviewers(reviewers ...models.AssignedReviewer) PROption {
	return func(pr *models.PullRequest) { pr.AssignedReviewers = reviewers }
}

// WithDecisions sets the live review decisions.
func WithDecisions(decisions ...models.ReviewDecision) PROption {
	return func(pr *models.PullRequest) { pr.ReviewDecisions = decisions }
}

// WithComments sets the comments.
func WithComments(comments ...models.Comment) PROption {
	return func(pr *models.PullRequest) { pr.Comments = comments }
}

// WithProject sets the project id.
func WithProject(id primitive.ObjectID) PROption {
	return func(pr *models.PullRequest) { pr.ProjectID = id }
}

// NewPullRequest builds an open pull request from feature to main without
// persisting it.
func NewPullRequest(authorID, authorName string, opts ...PROption) models.PullRequest {
	now := time.Now().UTC()
	pr := models.PullRequest{
		ID:                primitive.NewObjectID(),
		ProjectID:         primitive.NewObjectID(),
		Title:             "Test pull request",
		AuthorID:          authorID,
		AuthorName:        authorName,
		Status:            models.StatusOpen,
		SourceBranch:      "feature",
		TargetBranch:      "main",
		AssignedReviewers: []models.AssignedReviewer{},
		ReviewDecisions:   []models.ReviewDecision{},
		Comments:          []models.Comment{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, o := range opts {
		o(&pr)
	}
	return pr
}

// CreatePullRequest inserts a pull request.
func (f *Fixtures) CreatePullRequest(ctx context.Context, authorID, authorName string, opts ...PROption) models.PullRequest {
	f.t.Helper()

	pr := NewPullRequest(authorID, authorName, opts...)
	if _, err := f.db.Collection("pull_requests").InsertOne(ctx, pr); err != nil {
		f.t.Fatalf("failed to create test pull request: %v", err)
	}
	return pr
}

// CreateRule inserts a branch-protection rule built from the defaults and
// mutated by edit.
func (f *Fixtures) CreateRule(ctx context.Context, projectID primitive.ObjectID, pattern string, edit func(*models.BranchProtectionRule)) models.BranchProtectionRule {
	f.t.Helper()

	now := time.Now().UTC()
	rule := models.DefaultRule(projectID, pattern)
	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if edit != nil {
		edit(&rule)
	}
	if _, err := f.db.Collection("branch_protection_rules").InsertOne(ctx, rule); err != nil {
		f.t.Fatalf("failed to create test rule: %v", err)
	}
	return rule
}

// Approval builds an approving review decision.
func Approval(reviewerID, reviewerName string) models.ReviewDecision {
	return models.ReviewDecision{
		ReviewerID:   reviewerID,
		ReviewerName: reviewerName,
		Decision:     models.DecisionApproved,
		CreatedAt:    time.Now().UTC(),
	}
}

// ChangesRequested builds a changes-requested review decision.
func ChangesRequested(reviewerID, reviewerName string) models.ReviewDecision {
	return models.ReviewDecision{
		ReviewerID:   reviewerID,
		ReviewerName: reviewerName,
		Decision:     models.DecisionChangesRequested,
		CreatedAt:    time.Now().UTC(),
	}
}
