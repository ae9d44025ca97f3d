// internal/app/policy/mergepolicy/mergepolicy.go
// Package mergepolicy decides whether a pull request may merge under a
// branch-protection rule. Evaluate is pure; Gatherer collects the inputs
// that need I/O (status checks and branch freshness).
package mergepolicy

import (
	"fmt"
	"strings"

	"github.com/dalemusser/reviewhub/internal/domain/models"
)

// ReviewState is everything Evaluate needs to know about a pull request.
type ReviewState struct {
	SourceBranch string
	TargetBranch string
	Decisions    []models.ReviewDecision
	Comments     []models.Comment

	// Checks maps a status context to whether it is passing. Contexts missing
	// from the map are failing.
	Checks            map[string]bool
	ChecksUnavailable bool

	UpToDate bool
}

// StateFromPR copies the review-related fields of a pull request. Checks and
// freshness are left for the caller (or Gatherer) to fill in.
func StateFromPR(pr models.PullRequest) ReviewState {
	return ReviewState{
		SourceBranch: pr.SourceBranch,
		TargetBranch: pr.TargetBranch,
		Decisions:    pr.ReviewDecisions,
		Comments:     pr.Comments,
	}
}

// ApprovalRequirement reports the approval count check.
type ApprovalRequirement struct {
	Required   int      `json:"required"`
	Current    int      `json:"current"`
	ApprovedBy []string `json:"approvedBy"`
	Satisfied  bool     `json:"satisfied"`
}

// ChangesRequestedRequirement reports the changes-requested veto.
type ChangesRequestedRequirement struct {
	By        []string `json:"by"`
	Satisfied bool     `json:"satisfied"`
}

// ConversationRequirement reports unresolved comments.
type ConversationRequirement struct {
	Required   bool `json:"required"`
	Unresolved int  `json:"unresolved"`
	Satisfied  bool `json:"satisfied"`
}

// StatusCheckRequirement reports required status contexts.
type StatusCheckRequirement struct {
	Contexts    []string `json:"contexts"`
	Failing     []string `json:"failing"`
	Unavailable bool     `json:"unavailable"`
	Satisfied   bool     `json:"satisfied"`
}

// UpToDateRequirement reports branch freshness.
type UpToDateRequirement struct {
	Required  bool `json:"required"`
	Satisfied bool `json:"satisfied"`
}

// Requirements is the per-check breakdown of a verdict.
type Requirements struct {
	Approvals        ApprovalRequirement         `json:"approvals"`
	ChangesRequested ChangesRequestedRequirement `json:"changesRequested"`
	Conversations    ConversationRequirement     `json:"conversations"`
	StatusChecks     StatusCheckRequirement      `json:"statusChecks"`
	UpToDate         UpToDateRequirement         `json:"upToDate"`
}

// Verdict is the outcome of evaluating a pull request against a rule.
type Verdict struct {
	Protected    bool          `json:"protected"`
	CanMerge     bool          `json:"canMerge"`
	TargetBranch string        `json:"targetBranch"`
	SourceBranch string        `json:"sourceBranch"`
	Requirements *Requirements `json:"requirements,omitempty"`
	Violations   []string      `json:"violations"`
}

// Unprotected is the verdict for a branch no active rule covers.
func Unprotected(source, target string) Verdict {
	return Verdict{
		Protected:    false,
		CanMerge:     true,
		SourceBranch: source,
		TargetBranch: target,
		Violations:   []string{},
	}
}

// Normalize returns a copy of rule with out-of-range values replaced:
// fewer than one required reviewer falls back to the default, more than the
// maximum is clamped.
func Normalize(rule models.BranchProtectionRule) models.BranchProtectionRule {
	switch {
	case rule.RequiredReviewers < models.MinRequiredReviewers:
		rule.RequiredReviewers = models.DefaultRequiredReviewers
	case rule.RequiredReviewers > models.MaxRequiredReviewers:
		rule.RequiredReviewers = models.MaxRequiredReviewers
	}
	contexts := make([]string, 0, len(rule.RequiredStatusChecks.Contexts))
	for _, c := range rule.RequiredStatusChecks.Contexts {
		if c = strings.TrimSpace(c); c != "" {
			contexts = append(contexts, c)
		}
	}
	rule.RequiredStatusChecks.Contexts = contexts
	return rule
}

// Evaluate applies rule to st. A nil or inactive rule means the branch is
// not protected. Violations appear in evaluation order: approvals, changes
// requested, conversations, status checks, up-to-date.
func Evaluate(st ReviewState, rule *models.BranchProtectionRule) Verdict {
	if rule == nil || !rule.IsActive {
		return Unprotected(st.SourceBranch, st.TargetBranch)
	}
	r := Normalize(*rule)
	req := &Requirements{}
	violations := []string{}

	latest := latestDecisions(st.Decisions)

	// Approvals
	for _, d := range latest {
		if d.Decision == models.DecisionApproved {
			req.Approvals.ApprovedBy = append(req.Approvals.ApprovedBy, displayName(d))
		}
	}
	req.Approvals.Current = len(req.Approvals.ApprovedBy)
	if r.RequireReviews {
		req.Approvals.Required = r.RequiredReviewers
	}
	req.Approvals.Satisfied = req.Approvals.Current >= req.Approvals.Required
	if !req.Approvals.Satisfied {
		msg := fmt.Sprintf("Requires %d approvals, has %d", req.Approvals.Required, req.Approvals.Current)
		if req.Approvals.Current > 0 {
			msg += " (approved by: " + strings.Join(req.Approvals.ApprovedBy, ", ") + ")"
		}
		violations = append(violations, msg)
	}

	// Changes requested
	for _, d := range latest {
		if d.Decision == models.DecisionChangesRequested {
			req.ChangesRequested.By = append(req.ChangesRequested.By, displayName(d))
		}
	}
	req.ChangesRequested.Satisfied = len(req.ChangesRequested.By) == 0
	if !req.ChangesRequested.Satisfied {
		violations = append(violations, "Changes requested by: "+strings.Join(req.ChangesRequested.By, ", "))
	}

	// Conversations
	req.Conversations.Required = r.DismissStaleReviews
	if r.DismissStaleReviews {
		for _, c := range st.Comments {
			if !c.Resolved {
				req.Conversations.Unresolved++
			}
		}
	}
	req.Conversations.Satisfied = req.Conversations.Unresolved == 0
	if !req.Conversations.Satisfied {
		violations = append(violations, fmt.Sprintf("%d unresolved conversation(s) must be resolved", req.Conversations.Unresolved))
	}

	// Status checks
	contexts := r.RequiredStatusChecks.Contexts
	req.StatusChecks.Contexts = contexts
	req.StatusChecks.Failing = []string{}
	if len(contexts) > 0 {
		if st.ChecksUnavailable {
			req.StatusChecks.Unavailable = true
			req.StatusChecks.Failing = append(req.StatusChecks.Failing, contexts...)
		} else {
			for _, c := range contexts {
				if !st.Checks[c] {
					req.StatusChecks.Failing = append(req.StatusChecks.Failing, c)
				}
			}
		}
	}
	req.StatusChecks.Satisfied = len(req.StatusChecks.Failing) == 0
	if !req.StatusChecks.Satisfied {
		prefix := "Required status checks not passing: "
		if req.StatusChecks.Unavailable {
			prefix = "Status checks unavailable: "
		}
		violations = append(violations, prefix+strings.Join(req.StatusChecks.Failing, ", "))
	}

	// Up to date
	req.UpToDate.Required = len(contexts) > 0 && r.RequiredStatusChecks.Strict
	req.UpToDate.Satisfied = !req.UpToDate.Required || st.UpToDate
	if !req.UpToDate.Satisfied {
		violations = append(violations, fmt.Sprintf("Branch %s is not up to date with %s", st.SourceBranch, st.TargetBranch))
	}

	return Verdict{
		Protected:    true,
		CanMerge:     len(violations) == 0,
		SourceBranch: st.SourceBranch,
		TargetBranch: st.TargetBranch,
		Requirements: req,
		Violations:   violations,
	}
}

// latestDecisions keeps the newest decision per reviewer, ordered by when
// each reviewer first appears in ds.
func latestDecisions(ds []models.ReviewDecision) []models.ReviewDecision {
	idx := make(map[string]int, len(ds))
	out := make([]models.ReviewDecision, 0, len(ds))
	for _, d := range ds {
		i, seen := idx[d.ReviewerID]
		if !seen {
			idx[d.ReviewerID] = len(out)
			out = append(out, d)
			continue
		}
		if !d.CreatedAt.Before(out[i].CreatedAt) {
			out[i] = d
		}
	}
	return out
}

func displayName(d models.ReviewDecision) string {
	if d.ReviewerName != "" {
		return d.ReviewerName
	}
	return d.ReviewerID
}
