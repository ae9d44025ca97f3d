// internal/domain/models/pullrequest.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PRStatus is a pull request lifecycle state.
type PRStatus string

const (
	StatusDraft     PRStatus = "draft"
	StatusOpen      PRStatus = "open"
	StatusReviewing PRStatus = "reviewing"
	StatusApproved  PRStatus = "approved"
	StatusRejected  PRStatus = "rejected"
	StatusMerged    PRStatus = "merged"
	StatusClosed    PRStatus = "closed"
)

// Decision is a reviewer's verdict on a pull request.
type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionChangesRequested Decision = "changes_requested"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionChangesRequested:
		return true
	}
	return false
}

// MergeMethod is how the source branch is folded into the target.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// Valid reports whether m is a known merge method.
func (m MergeMethod) Valid() bool {
	switch m {
	case MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
		return true
	}
	return false
}

// AssignedReviewer is a user asked to review a pull request.
type AssignedReviewer struct {
	UserID   string `bson:"user_id" json:"userId"`
	Username string `bson:"username" json:"username"`
}

// ReviewDecision is the live decision of one reviewer. A pull request holds at
// most one per reviewer; a newer decision replaces the older one.
type ReviewDecision struct {
	ReviewerID   string    `bson:"reviewer_id" json:"reviewerId"`
	ReviewerName string    `bson:"reviewer_name" json:"reviewerName"`
	Decision     Decision  `bson:"decision" json:"decision"`
	Comment      string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// Comment is a general or line-level comment on a pull request.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	AuthorID   string             `bson:"author_id" json:"authorId"`
	AuthorName string             `bson:"author_name" json:"authorName"`
	Text       string             `bson:"text" json:"text"`
	FilePath   string             `bson:"file_path,omitempty" json:"filePath,omitempty"`
	LineNumber *int               `bson:"line_number,omitempty" json:"lineNumber,omitempty"`
	Resolved   bool               `bson:"resolved" json:"resolved"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

// PullRequest is owned by the project CRUD layer; this service reads it and
// writes status, reviews, reviewers, comments, and merge metadata.
type PullRequest struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	ProjectID    primitive.ObjectID `bson:"project_id" json:"projectId"`
	Title        string             `bson:"title" json:"title"`
	AuthorID     string             `bson:"author_id" json:"authorId"`
	AuthorName   string             `bson:"author_name" json:"authorName"`
	Status       PRStatus           `bson:"status" json:"status"`
	SourceBranch string             `bson:"source_branch" json:"sourceBranch"`
	TargetBranch string             `bson:"target_branch" json:"targetBranch"`

	AssignedReviewers []AssignedReviewer `bson:"assigned_reviewers" json:"assignedReviewers"`
	ReviewDecisions   []ReviewDecision   `bson:"review_decisions" json:"reviewDecisions"`
	Comments          []Comment          `bson:"comments" json:"comments"`

	MergedAt    *time.Time  `bson:"merged_at,omitempty" json:"mergedAt,omitempty"`
	MergedBy    string      `bson:"merged_by,omitempty" json:"mergedBy,omitempty"`
	MergeMethod MergeMethod `bson:"merge_method,omitempty" json:"mergeMethod,omitempty"`
	ForceMerged bool        `bson:"force_merged,omitempty" json:"forceMerged,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsReviewer reports whether userID is among the assigned reviewers.
func (pr PullRequest) IsReviewer(userID string) bool {
	for _, r := range pr.AssignedReviewers {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// StatusCheck is the latest reported state of one status context for a pull request.
type StatusCheck struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	PullRequestID primitive.ObjectID `bson:"pull_request_id" json:"pullRequestId"`
	Context       string             `bson:"context" json:"context"`
	State         string             `bson:"state" json:"state"` // success | failure | pending | error
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	ReportedBy    string             `bson:"reported_by,omitempty" json:"reportedBy,omitempty"`
	ReportedAt    time.Time          `bson:"reported_at" json:"reportedAt"`
}

// Status check states.
const (
	CheckSuccess = "success"
	CheckFailure = "failure"
	CheckPending = "pending"
	CheckError   = "error"
)
