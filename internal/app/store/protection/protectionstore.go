// internal/app/store/protection/protectionstore.go
package protectionstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no matching active rule exists.
	ErrNotFound = errors.New("branch protection rule not found")
	// ErrConflict is returned when an active rule already exists for the
	// same project and branch pattern.
	ErrConflict = errors.New("an active rule already exists for this branch pattern")
)

// Store provides access to the branch_protection_rules collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new rule store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("branch_protection_rules")}
}

func activeFilter(projectID primitive.ObjectID, pattern string) bson.M {
	return bson.M{"project_id": projectID, "branch_pattern": pattern, "is_active": true}
}

func normalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return models.DefaultBranchPattern
	}
	return pattern
}

// defaultFields returns the default rule as a flat map of dotted paths so
// that individual fields can be excluded when they also appear in $set.
func defaultFields(projectID primitive.ObjectID, pattern string, now time.Time) bson.M {
	d := models.DefaultRule(projectID, pattern)
	return bson.M{
		"_id":                             primitive.NewObjectID(),
		"require_pull_request":            d.RequirePullRequest,
		"require_reviews":                 d.RequireReviews,
		"required_reviewers":              d.RequiredReviewers,
		"dismiss_stale_reviews":           d.DismissStaleReviews,
		"require_code_owner_reviews":      d.RequireCodeOwnerReviews,
		"restrict_pushes":                 d.RestrictPushes,
		"allow_force_pushes":              d.AllowForcePushes,
		"allow_deletions":                 d.AllowDeletions,
		"required_status_checks.strict":   d.RequiredStatusChecks.Strict,
		"required_status_checks.contexts": d.RequiredStatusChecks.Contexts,
		"enforce_admins":                  d.EnforceAdmins,
		"block_creations":                 d.BlockCreations,
		"created_at":                      now,
		"updated_at":                      now,
	}
}

// GetActive returns the active rule for (projectID, pattern), creating it
// with default settings when none exists. Creation is a single atomic
// upsert; a concurrent creator losing the race on the partial unique
// index re-reads the winner's rule.
func (s *Store) GetActive(ctx context.Context, projectID primitive.ObjectID, pattern string) (models.BranchProtectionRule, error) {
	pattern = normalizePattern(pattern)
	update := bson.M{"$setOnInsert": defaultFields(projectID, pattern, time.Now().UTC())}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rule models.BranchProtectionRule
	err := s.c.FindOneAndUpdate(ctx, activeFilter(projectID, pattern), update, opts).Decode(&rule)
	if err != nil && wafflemongo.IsDup(err) {
		err = s.c.FindOne(ctx, activeFilter(projectID, pattern)).Decode(&rule)
	}
	if err != nil {
		return models.BranchProtectionRule{}, err
	}
	return rule, nil
}

// FindActive returns the active rule for (projectID, pattern) without
// creating one. ErrNotFound when there is none.
func (s *Store) FindActive(ctx context.Context, projectID primitive.ObjectID, pattern string) (models.BranchProtectionRule, error) {
	var rule models.BranchProtectionRule
	err := s.c.FindOne(ctx, activeFilter(projectID, normalizePattern(pattern))).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.BranchProtectionRule{}, ErrNotFound
	}
	return rule, err
}

// GetByID returns a rule by id, active or not.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.BranchProtectionRule, error) {
	var rule models.BranchProtectionRule
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.BranchProtectionRule{}, ErrNotFound
	}
	return rule, err
}

// FindMatching returns the active rule of projectID that applies to branch,
// or ErrNotFound when the branch is unprotected. It never creates a rule.
func (s *Store) FindMatching(ctx context.Context, projectID primitive.ObjectID, branch string) (models.BranchProtectionRule, error) {
	rules, err := s.ListByProject(ctx, projectID, false)
	if err != nil {
		return models.BranchProtectionRule{}, err
	}
	best, ok := BestMatch(rules, branch)
	if !ok {
		return models.BranchProtectionRule{}, ErrNotFound
	}
	return best, nil
}

// Upsert merges settings into the active rule for (projectID, pattern),
// creating it from defaults when absent. Unspecified fields keep their
// current values; required_reviewers is clamped to the allowed range.
func (s *Store) Upsert(ctx context.Context, projectID primitive.ObjectID, pattern string, settings models.RuleSettings, actorID string) (models.BranchProtectionRule, error) {
	rule, err := s.upsert(ctx, projectID, pattern, settings, actorID)
	if err != nil && wafflemongo.IsDup(err) {
		rule, err = s.upsert(ctx, projectID, pattern, settings, actorID)
	}
	return rule, err
}

func (s *Store) upsert(ctx context.Context, projectID primitive.ObjectID, pattern string, settings models.RuleSettings, actorID string) (models.BranchProtectionRule, error) {
	pattern = normalizePattern(pattern)
	now := time.Now().UTC()

	set := settingsToSet(settings)
	set["updated_at"] = now
	if actorID != "" {
		set["updated_by"] = actorID
	}

	onInsert := defaultFields(projectID, pattern, now)
	if actorID != "" {
		onInsert["created_by"] = actorID
	}
	for k := range set {
		delete(onInsert, k)
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var rule models.BranchProtectionRule
	err := s.c.FindOneAndUpdate(ctx, activeFilter(projectID, pattern),
		bson.M{"$set": set, "$setOnInsert": onInsert}, opts).Decode(&rule)
	if err != nil {
		return models.BranchProtectionRule{}, err
	}
	return rule, nil
}

func settingsToSet(st models.RuleSettings) bson.M {
	set := bson.M{}
	put := func(key string, v *bool) {
		if v != nil {
			set[key] = *v
		}
	}
	put("require_pull_request", st.RequirePullRequest)
	put("require_reviews", st.RequireReviews)
	put("dismiss_stale_reviews", st.DismissStaleReviews)
	put("require_code_owner_reviews", st.RequireCodeOwnerReviews)
	put("restrict_pushes", st.RestrictPushes)
	put("allow_force_pushes", st.AllowForcePushes)
	put("allow_deletions", st.AllowDeletions)
	put("required_status_checks.strict", st.StrictStatusChecks)
	put("enforce_admins", st.EnforceAdmins)
	put("block_creations", st.BlockCreations)
	if st.RequiredReviewers != nil {
		set["required_reviewers"] = models.ClampReviewers(*st.RequiredReviewers)
	}
	if st.StatusCheckContexts != nil {
		set["required_status_checks.contexts"] = cleanContexts(*st.StatusCheckContexts)
	}
	return set
}

func cleanContexts(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Create inserts a new active rule. It returns ErrConflict when an active
// rule already exists for the same project and pattern.
func (s *Store) Create(ctx context.Context, rule models.BranchProtectionRule) (models.BranchProtectionRule, error) {
	now := time.Now().UTC()
	rule.ID = primitive.NewObjectID()
	rule.BranchPattern = normalizePattern(rule.BranchPattern)
	rule.RequiredReviewers = models.ClampReviewers(rule.RequiredReviewers)
	rule.RequiredStatusChecks.Contexts = cleanContexts(rule.RequiredStatusChecks.Contexts)
	rule.IsActive = true
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, rule); err != nil {
		if wafflemongo.IsDup(err) {
			return models.BranchProtectionRule{}, ErrConflict
		}
		return models.BranchProtectionRule{}, err
	}
	return rule, nil
}

// Deactivate soft-deletes an active rule. The document is kept as history.
func (s *Store) Deactivate(ctx context.Context, id primitive.ObjectID, actorID string) (models.BranchProtectionRule, error) {
	set := bson.M{"is_active": false, "updated_at": time.Now().UTC()}
	if actorID != "" {
		set["updated_by"] = actorID
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rule models.BranchProtectionRule
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "is_active": true}, bson.M{"$set": set}, opts).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.BranchProtectionRule{}, ErrNotFound
	}
	if err != nil {
		return models.BranchProtectionRule{}, err
	}
	return rule, nil
}

// ListByProject returns a project's rules, newest first. Inactive rules are
// included only when includeInactive is set.
func (s *Store) ListByProject(ctx context.Context, projectID primitive.ObjectID, includeInactive bool) ([]models.BranchProtectionRule, error) {
	filter := bson.M{"project_id": projectID}
	if !includeInactive {
		filter["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rules []models.BranchProtectionRule
	if err := cur.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
