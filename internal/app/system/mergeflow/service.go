// internal/app/system/mergeflow/service.go
// Package mergeflow drives a pull request through its status machine:
// reviews, explicit transitions, gated merges and audited force merges.
package mergeflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/policy/mergepolicy"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/txn"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MinForceMergeReason is the shortest accepted force-merge justification.
const MinForceMergeReason = 10

// Broadcaster sends an event to everyone viewing a pull request.
type Broadcaster interface {
	BroadcastRoom(prID primitive.ObjectID, ev presence.Event) int
	BroadcastComment(prID primitive.ObjectID, event string, p presence.CommentPayload) int
}

// Notifier creates notifications for pull request events.
type Notifier interface {
	StatusChanged(ctx context.Context, pr *models.PullRequest, actorID string, to models.PRStatus) int
	ReviewersAssigned(ctx context.Context, pr *models.PullRequest, sender string, reviewers []models.AssignedReviewer) int
	CommentAdded(ctx context.Context, pr *models.PullRequest, c models.Comment) int
}

// StatusChangedPayload is the data of the status-changed event.
type StatusChangedPayload struct {
	PullRequestID string          `json:"pullRequestId"`
	From          models.PRStatus `json:"from"`
	To            models.PRStatus `json:"to"`
	Actor         string          `json:"actor"`
	ForceMerged   bool            `json:"forceMerged,omitempty"`
}

// Deps are the collaborators of a Service. Client, Broadcaster and Notifier
// may be nil.
type Deps struct {
	Client      *mongo.Client
	PRs         *prstore.Store
	Rules       *protectionstore.Store
	Audit       *audit.Store
	AuditLog    *auditlog.Logger
	Gatherer    *mergepolicy.Gatherer
	Broadcaster Broadcaster
	Notifier    Notifier
	Log         *zap.Logger
}

// Service implements the pull request operations that change status.
type Service struct {
	client   *mongo.Client
	prs      *prstore.Store
	rules    *protectionstore.Store
	audit    *audit.Store
	auditLog *auditlog.Logger
	gather   *mergepolicy.Gatherer
	rooms    Broadcaster
	notes    Notifier
	log      *zap.Logger
}

func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	g := d.Gatherer
	if g == nil {
		g = &mergepolicy.Gatherer{Log: log}
	}
	return &Service{
		client:   d.Client,
		prs:      d.PRs,
		rules:    d.Rules,
		audit:    d.Audit,
		auditLog: d.AuditLog,
		gather:   g,
		rooms:    d.Broadcaster,
		notes:    d.Notifier,
		log:      log,
	}
}

// PullRequest loads a pull request.
func (s *Service) PullRequest(ctx context.Context, id primitive.ObjectID) (models.PullRequest, error) {
	return s.prs.GetByID(ctx, id)
}

// ruleFor returns the active rule protecting pr's target branch, or nil.
func (s *Service) ruleFor(ctx context.Context, pr models.PullRequest) (*models.BranchProtectionRule, error) {
	rule, err := s.rules.FindMatching(ctx, pr.ProjectID, pr.TargetBranch)
	if errors.Is(err, protectionstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load protection rule: %w", err)
	}
	return &rule, nil
}

// Evaluate returns the merge verdict for pr.
func (s *Service) Evaluate(ctx context.Context, pr models.PullRequest) (mergepolicy.Verdict, error) {
	rule, err := s.ruleFor(ctx, pr)
	if err != nil {
		return mergepolicy.Verdict{}, err
	}
	if rule == nil {
		return mergepolicy.Unprotected(pr.SourceBranch, pr.TargetBranch), nil
	}
	return mergepolicy.Evaluate(s.gather.Gather(ctx, pr, rule), rule), nil
}

// ProtectionStatus loads a pull request and evaluates it.
func (s *Service) ProtectionStatus(ctx context.Context, id primitive.ObjectID) (models.PullRequest, mergepolicy.Verdict, error) {
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.PullRequest{}, mergepolicy.Verdict{}, err
	}
	v, err := s.Evaluate(ctx, pr)
	return pr, v, err
}

func normalizeMethod(m models.MergeMethod) (models.MergeMethod, error) {
	if m == "" {
		return models.MergeMethodMerge, nil
	}
	m = models.MergeMethod(strings.ToLower(string(m)))
	if !m.Valid() {
		return "", ErrInvalidMergeMethod
	}
	return m, nil
}

func mapStale(err error) error {
	if errors.Is(err, prstore.ErrStaleStatus) {
		return ErrStaleStatus
	}
	return err
}

// Merge merges an approved pull request if branch protection allows it.
func (s *Service) Merge(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, method models.MergeMethod) (models.PullRequest, error) {
	method, err := normalizeMethod(method)
	if err != nil {
		return models.PullRequest{}, err
	}
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.PullRequest{}, err
	}
	if pr.Status != models.StatusApproved {
		return models.PullRequest{}, &TransitionError{From: pr.Status, To: models.StatusMerged}
	}

	verdict, err := s.Evaluate(ctx, pr)
	if err != nil {
		return models.PullRequest{}, err
	}
	if !verdict.CanMerge {
		s.auditLog.MergeBlocked(ctx, actor, &pr, verdict.Violations)
		return models.PullRequest{}, &PolicyViolationError{Violations: verdict.Violations}
	}

	merged, err := s.prs.MarkMerged(ctx, id, []models.PRStatus{models.StatusApproved}, prstore.MergeInfo{
		MergedBy: actor.ID,
		Method:   method,
	})
	if err != nil {
		return models.PullRequest{}, mapStale(err)
	}

	s.auditLog.Merged(ctx, actor, &merged, method)
	s.statusChanged(ctx, actor, &merged, pr.Status, false)
	return merged, nil
}

// ForceMergeResult is the outcome of a force merge.
type ForceMergeResult struct {
	PullRequest        models.PullRequest
	AuditID            primitive.ObjectID
	BypassedViolations []string
}

// ForceMerge merges without consulting branch protection. Only admins may
// force merge; the reason is required and stored verbatim in exactly one
// audit record written together with the status change.
func (s *Service) ForceMerge(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, reason string, method models.MergeMethod) (ForceMergeResult, error) {
	if len([]rune(strings.TrimSpace(reason))) < MinForceMergeReason {
		return ForceMergeResult{}, ErrReasonTooShort
	}
	method, err := normalizeMethod(method)
	if err != nil {
		return ForceMergeResult{}, err
	}
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return ForceMergeResult{}, err
	}
	if !authz.CanForceMerge(actor.Role) {
		s.auditLog.ForceMergeDenied(ctx, actor, &pr)
		return ForceMergeResult{}, ErrForbidden
	}
	if !contains(forceMergeFrom, pr.Status) {
		return ForceMergeResult{}, &TransitionError{From: pr.Status, To: models.StatusMerged}
	}

	verdict, err := s.Evaluate(ctx, pr)
	if err != nil {
		return ForceMergeResult{}, err
	}
	bypassed := append([]string{}, verdict.Violations...)

	event := auditlog.ForceMergeEvent(actor, &pr, reason, method, bypassed)
	event.Timestamp = time.Now().UTC()
	info := prstore.MergeInfo{MergedBy: actor.ID, Method: method, Force: true, At: event.Timestamp}

	merged, auditID, err := s.forceMergeAtomic(ctx, pr, info, event)
	if err != nil {
		return ForceMergeResult{}, mapStale(err)
	}

	event.ID = auditID
	s.auditLog.Recorded(event)
	s.log.Warn("pull request force merged",
		zap.String("pull_request_id", pr.ID.Hex()),
		zap.String("actor_id", actor.ID),
		zap.Strings("bypassed_violations", bypassed))
	s.statusChanged(ctx, actor, &merged, pr.Status, true)

	return ForceMergeResult{PullRequest: merged, AuditID: auditID, BypassedViolations: bypassed}, nil
}

// forceMergeAtomic writes the merge and its audit record in one transaction.
// Without transaction support the audit record is written first and removed
// again if the status update does not go through, so a merged pull request
// never lacks its record.
func (s *Service) forceMergeAtomic(ctx context.Context, pr models.PullRequest, info prstore.MergeInfo, event audit.Event) (models.PullRequest, primitive.ObjectID, error) {
	var merged models.PullRequest
	var auditID primitive.ObjectID

	err := txn.Run(ctx, s.client, func(sc mongo.SessionContext) error {
		var err error
		merged, err = s.prs.MarkMerged(sc, pr.ID, forceMergeFrom, info)
		if err != nil {
			return err
		}
		auditID, err = s.audit.Insert(sc, event)
		return err
	})
	if err == nil {
		return merged, auditID, nil
	}
	if !errors.Is(err, txn.ErrNotSupported) {
		return models.PullRequest{}, primitive.NilObjectID, err
	}

	auditID, err = s.audit.Insert(ctx, event)
	if err != nil {
		return models.PullRequest{}, primitive.NilObjectID, fmt.Errorf("write force merge audit record: %w", err)
	}
	merged, err = s.prs.MarkMerged(ctx, pr.ID, forceMergeFrom, info)
	if err != nil {
		if derr := s.audit.Delete(ctx, auditID); derr != nil {
			s.log.Error("failed to remove audit record of failed force merge",
				zap.String("pull_request_id", pr.ID.Hex()),
				zap.String("audit_id", auditID.Hex()),
				zap.Error(derr))
		}
		return models.PullRequest{}, primitive.NilObjectID, err
	}
	return merged, auditID, nil
}

// SetStatus applies an explicit status transition. Authors may move their own
// pull request; maintainers and admins may move any. Approving or rejecting
// directly needs a maintainer or admin.
func (s *Service) SetStatus(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, to models.PRStatus) (models.PullRequest, error) {
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.PullRequest{}, err
	}
	privileged := authz.CanManageProtection(actor.Role)
	if !privileged && actor.ID != pr.AuthorID {
		return models.PullRequest{}, ErrForbidden
	}
	if (to == models.StatusApproved || to == models.StatusRejected) && !privileged {
		return models.PullRequest{}, ErrForbidden
	}
	if !CanTransition(pr.Status, to) {
		return models.PullRequest{}, &TransitionError{From: pr.Status, To: to}
	}

	updated, err := s.prs.SetStatus(ctx, id, []models.PRStatus{pr.Status}, to)
	if err != nil {
		return models.PullRequest{}, mapStale(err)
	}
	s.auditLog.StatusChanged(ctx, actor, &updated, pr.Status, to)
	s.statusChanged(ctx, actor, &updated, pr.Status, false)
	return updated, nil
}

// statusChanged tells the room and the author.
func (s *Service) statusChanged(ctx context.Context, actor auditlog.Actor, pr *models.PullRequest, from models.PRStatus, force bool) {
	if s.rooms != nil {
		s.rooms.BroadcastRoom(pr.ID, presence.Event{Name: presence.EventStatusChanged, Data: StatusChangedPayload{
			PullRequestID: pr.ID.Hex(),
			From:          from,
			To:            pr.Status,
			Actor:         actor.ID,
			ForceMerged:   force,
		}})
	}
	if s.notes != nil {
		s.notes.StatusChanged(ctx, pr, actor.ID, pr.Status)
	}
}
