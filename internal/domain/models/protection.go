// internal/domain/models/protection.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reviewer count bounds and defaults for branch protection rules.
const (
	MinRequiredReviewers     = 1
	MaxRequiredReviewers     = 10
	DefaultRequiredReviewers = 2
	DefaultBranchPattern     = "main"
)

// DefaultStatusContexts are the status checks a freshly materialized rule requires.
var DefaultStatusContexts = []string{"ci/tests", "ci/build"}

// RequiredStatusChecks lists the status contexts that must pass before merge.
// Strict additionally requires the source branch to be up to date with the target.
type RequiredStatusChecks struct {
	Strict   bool     `bson:"strict" json:"strict"`
	Contexts []string `bson:"contexts" json:"contexts"`
}

// BranchProtectionRule is one protection policy per (project, branch pattern).
// At most one active rule exists per pair; inactive rules are kept as history.
type BranchProtectionRule struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	ProjectID     primitive.ObjectID `bson:"project_id" json:"projectId"`
	BranchPattern string             `bson:"branch_pattern" json:"branchPattern"`

	RequirePullRequest      bool                 `bson:"require_pull_request" json:"requirePullRequest"`
	RequireReviews          bool                 `bson:"require_reviews" json:"requireReviews"`
	RequiredReviewers       int                  `bson:"required_reviewers" json:"requiredReviewers"`
	DismissStaleReviews     bool                 `bson:"dismiss_stale_reviews" json:"dismissStaleReviews"`
	RequireCodeOwnerReviews bool                 `bson:"require_code_owner_reviews" json:"requireCodeOwnerReviews"`
	RestrictPushes          bool                 `bson:"restrict_pushes" json:"restrictPushes"`
	AllowForcePushes        bool                 `bson:"allow_force_pushes" json:"allowForcePushes"`
	AllowDeletions          bool                 `bson:"allow_deletions" json:"allowDeletions"`
	RequiredStatusChecks    RequiredStatusChecks `bson:"required_status_checks" json:"requiredStatusChecks"`
	EnforceAdmins           bool                 `bson:"enforce_admins" json:"enforceAdmins"`
	BlockCreations          bool                 `bson:"block_creations" json:"blockCreations"`
	IsActive                bool                 `bson:"is_active" json:"isActive"`

	CreatedBy string    `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	UpdatedBy string    `bson:"updated_by,omitempty" json:"updatedBy,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// RuleSettings carries a partial rule update. Nil fields are left unchanged.
type RuleSettings struct {
	RequirePullRequest      *bool     `json:"requirePullRequest,omitempty"`
	RequireReviews          *bool     `json:"requireReviews,omitempty"`
	RequiredReviewers       *int      `json:"requiredReviewers,omitempty"`
	DismissStaleReviews     *bool     `json:"dismissStaleReviews,omitempty"`
	RequireCodeOwnerReviews *bool     `json:"requireCodeOwnerReviews,omitempty"`
	RestrictPushes          *bool     `json:"restrictPushes,omitempty"`
	AllowForcePushes        *bool     `json:"allowForcePushes,omitempty"`
	AllowDeletions          *bool     `json:"allowDeletions,omitempty"`
	StrictStatusChecks      *bool     `json:"strict,omitempty"`
	StatusCheckContexts     *[]string `json:"contexts,omitempty"`
	EnforceAdmins           *bool     `json:"enforceAdmins,omitempty"`
	BlockCreations          *bool     `json:"blockCreations,omitempty"`
}

// DefaultRule returns the rule materialized for a project/branch with no configuration.
func DefaultRule(projectID primitive.ObjectID, branchPattern string) BranchProtectionRule {
	contexts := make([]string, len(DefaultStatusContexts))
	copy(contexts, DefaultStatusContexts)
	return BranchProtectionRule{
		ProjectID:          projectID,
		BranchPattern:      branchPattern,
		RequirePullRequest: true,
		RequireReviews:     true,
		RequiredReviewers:  DefaultRequiredReviewers,
		RequiredStatusChecks: RequiredStatusChecks{
			Strict:   true,
			Contexts: contexts,
		},
		AllowForcePushes: false,
		AllowDeletions:   false,
		IsActive:         true,
	}
}

// ClampReviewers bounds a reviewer count to [MinRequiredReviewers, MaxRequiredReviewers].
func ClampReviewers(n int) int {
	if n < MinRequiredReviewers {
		return MinRequiredReviewers
	}
	if n > MaxRequiredReviewers {
		return MaxRequiredReviewers
	}
	return n
}

// Apply copies the set fields of s onto r.
func (s RuleSettings) Apply(r *BranchProtectionRule) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.RequirePullRequest, s.RequirePullRequest)
	set(&r.RequireReviews, s.RequireReviews)
	set(&r.DismissStaleReviews, s.DismissStaleReviews)
	set(&r.RequireCodeOwnerReviews, s.RequireCodeOwnerReviews)
	set(&r.RestrictPushes, s.RestrictPushes)
	set(&r.AllowForcePushes, s.AllowForcePushes)
	set(&r.AllowDeletions, s.AllowDeletions)
	set(&r.RequiredStatusChecks.Strict, s.StrictStatusChecks)
	set(&r.EnforceAdmins, s.EnforceAdmins)
	set(&r.BlockCreations, s.BlockCreations)
	if s.RequiredReviewers != nil {
		r.RequiredReviewers = ClampReviewers(*s.RequiredReviewers)
	}
	if s.StatusCheckContexts != nil {
		r.RequiredStatusChecks.Contexts = append([]string{}, (*s.StatusCheckContexts)...)
	}
}
