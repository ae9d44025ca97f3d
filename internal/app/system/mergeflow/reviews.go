// internal/app/system/mergeflow/reviews.go
package mergeflow

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/reviewhub/internal/app/policy/mergepolicy"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SubmitReview records actor's decision and moves the pull request along:
// open becomes reviewing on the first review; from then on the status
// follows the live decisions (any rejection rejects, enough approvals
// approve, anything else is reviewing).
func (s *Service) SubmitReview(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, decision models.Decision, comment string) (models.PullRequest, error) {
	decision = models.Decision(strings.ToLower(strings.TrimSpace(string(decision))))
	if !decision.Valid() {
		return models.PullRequest{}, ErrInvalidDecision
	}
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.PullRequest{}, err
	}
	if pr.AuthorID == actor.ID {
		return models.PullRequest{}, ErrSelfReview
	}
	if !contains(reviewableFrom, pr.Status) {
		return models.PullRequest{}, &TransitionError{From: pr.Status, To: models.StatusReviewing}
	}

	updated, err := s.prs.RecordReview(ctx, id, models.ReviewDecision{
		ReviewerID:   actor.ID,
		ReviewerName: actor.Name,
		Decision:     decision,
		Comment:      htmlsanitize.StripTags(comment),
	})
	if err != nil {
		return models.PullRequest{}, err
	}

	if updated.Status == models.StatusOpen {
		updated, err = s.autoTransition(ctx, actor, updated, models.StatusReviewing)
		if err != nil {
			return models.PullRequest{}, err
		}
	}

	rule, err := s.ruleFor(ctx, updated)
	if err != nil {
		return models.PullRequest{}, err
	}
	target := reviewOutcome(updated, rule)
	if target != updated.Status && contains(reviewableFrom, updated.Status) {
		updated, err = s.autoTransition(ctx, actor, updated, target)
		if err != nil {
			return models.PullRequest{}, err
		}
	}
	return updated, nil
}

// autoTransition moves pr to to if nobody moved it first. Losing the race is
// not an error; the current document is returned instead.
func (s *Service) autoTransition(ctx context.Context, actor auditlog.Actor, pr models.PullRequest, to models.PRStatus) (models.PullRequest, error) {
	from := pr.Status
	updated, err := s.prs.SetStatus(ctx, pr.ID, []models.PRStatus{from}, to)
	if errors.Is(err, prstore.ErrStaleStatus) {
		s.log.Info("status moved concurrently",
			zap.String("pull_request_id", pr.ID.Hex()),
			zap.String("expected", string(from)))
		return s.prs.GetByID(ctx, pr.ID)
	}
	if err != nil {
		return models.PullRequest{}, err
	}
	s.auditLog.StatusChanged(ctx, actor, &updated, from, to)
	s.statusChanged(ctx, actor, &updated, from, false)
	return updated, nil
}

// reviewOutcome derives the status implied by the live review decisions.
// Without an active rule requiring reviews one approval is enough.
func reviewOutcome(pr models.PullRequest, rule *models.BranchProtectionRule) models.PRStatus {
	required := 1
	if rule != nil && rule.IsActive && rule.RequireReviews {
		required = mergepolicy.Normalize(*rule).RequiredReviewers
	}
	approvals := 0
	for _, d := range pr.ReviewDecisions {
		switch d.Decision {
		case models.DecisionRejected:
			return models.StatusRejected
		case models.DecisionApproved:
			approvals++
		}
	}
	if approvals >= required {
		return models.StatusApproved
	}
	return models.StatusReviewing
}

// AssignReviewers adds reviewers to a pull request. The author and
// maintainers may assign; the author is never assigned to their own pull
// request. Newly assigned reviewers are notified.
func (s *Service) AssignReviewers(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, reviewers []models.AssignedReviewer) (models.PullRequest, error) {
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.PullRequest{}, err
	}
	if actor.ID != pr.AuthorID && !authz.CanManageProtection(actor.Role) {
		return models.PullRequest{}, ErrForbidden
	}

	clean := make([]models.AssignedReviewer, 0, len(reviewers))
	seen := map[string]bool{}
	for _, r := range reviewers {
		r.UserID = strings.TrimSpace(r.UserID)
		if r.UserID == "" || r.UserID == pr.AuthorID || seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		r.Username = htmlsanitize.StripTags(r.Username)
		clean = append(clean, r)
	}
	if len(clean) == 0 {
		return pr, nil
	}

	updated, err := s.prs.AssignReviewers(ctx, id, clean)
	if err != nil {
		return models.PullRequest{}, err
	}

	var added []models.AssignedReviewer
	for _, r := range clean {
		if !pr.IsReviewer(r.UserID) {
			added = append(added, r)
		}
	}
	if s.notes != nil && len(added) > 0 {
		s.notes.ReviewersAssigned(ctx, &updated, actor.ID, added)
	}
	return updated, nil
}
