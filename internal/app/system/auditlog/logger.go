// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Merge controls logging for merge events (merges, blocked merges, status changes).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	// Force merge records are always written to MongoDB regardless of this setting.
	Merge string
	// Admin controls logging for branch-protection rule changes.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Actor identifies who performed an audited action.
type Actor struct {
	ID        string
	Name      string
	Role      string
	IP        string
	UserAgent string
}

// ActorFromRequest builds an Actor from the authenticated user and the
// request's client address.
func ActorFromRequest(r *http.Request) Actor {
	a := Actor{IP: getClientIP(r), UserAgent: r.UserAgent()}
	if u, ok := auth.CurrentUser(r); ok {
		a.ID = u.ID
		a.Name = u.Name
		a.Role = u.Role
	}
	return a
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("actor_id", event.ActorID),
		zap.String("ip", event.IP),
	}

	if event.PullRequestID != nil {
		fields = append(fields, zap.String("pull_request_id", event.PullRequestID.Hex()))
	}
	if event.ProjectID != nil {
		fields = append(fields, zap.String("project_id", event.ProjectID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(event.BypassedViolations) > 0 {
		fields = append(fields, zap.Strings("bypassed_violations", event.BypassedViolations))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	switch category {
	case audit.CategoryMerge:
		return l.config.Merge
	case audit.CategoryAdmin:
		return l.config.Admin
	default:
		return "all"
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.setting(event.Category)
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// Recorded writes an already-persisted event to zap. Used for records the
// caller stored itself, such as force merges written inside a transaction.
func (l *Logger) Recorded(event audit.Event) {
	if l == nil {
		return
	}
	if l.setting(event.Category) == "off" && event.EventType != audit.EventForceMerged {
		return
	}
	l.logToZap(event)
}

func base(category, eventType string, actor Actor) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ActorRole: actor.Role,
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
		Success:   true,
	}
}

// --- Merge Events ---

// ForceMergeEvent builds the audit record for a force merge. The reason is
// kept verbatim.
func ForceMergeEvent(actor Actor, pr *models.PullRequest, reason string, method models.MergeMethod, bypassed []string) audit.Event {
	e := base(audit.CategoryMerge, audit.EventForceMerged, actor)
	e.PullRequestID = ptrID(pr.ID)
	e.ProjectID = ptrID(pr.ProjectID)
	e.Reason = reason
	e.BypassedViolations = append([]string{}, bypassed...)
	e.Details = map[string]string{
		"merge_method":  string(method),
		"target_branch": pr.TargetBranch,
		"prior_status":  string(pr.Status),
	}
	return e
}

// Merged logs a normal merge.
func (l *Logger) Merged(ctx context.Context, actor Actor, pr *models.PullRequest, method models.MergeMethod) {
	e := base(audit.CategoryMerge, audit.EventMerged, actor)
	e.PullRequestID = ptrID(pr.ID)
	e.ProjectID = ptrID(pr.ProjectID)
	e.Details = map[string]string{
		"merge_method":  string(method),
		"target_branch": pr.TargetBranch,
	}
	l.Log(ctx, e)
}

// MergeBlocked logs a merge rejected by branch protection.
func (l *Logger) MergeBlocked(ctx context.Context, actor Actor, pr *models.PullRequest, violations []string) {
	e := base(audit.CategoryMerge, audit.EventMergeBlocked, actor)
	e.PullRequestID = ptrID(pr.ID)
	e.ProjectID = ptrID(pr.ProjectID)
	e.Success = false
	e.FailureReason = "policy violation"
	e.BypassedViolations = nil
	e.Details = map[string]string{"violations": strings.Join(violations, "; ")}
	l.Log(ctx, e)
}

// ForceMergeDenied logs a force merge attempt by a user without permission.
func (l *Logger) ForceMergeDenied(ctx context.Context, actor Actor, pr *models.PullRequest) {
	e := base(audit.CategoryMerge, audit.EventForceMergeDenied, actor)
	e.PullRequestID = ptrID(pr.ID)
	e.ProjectID = ptrID(pr.ProjectID)
	e.Success = false
	e.FailureReason = "insufficient role"
	l.Log(ctx, e)
}

// StatusChanged logs a pull-request status transition.
func (l *Logger) StatusChanged(ctx context.Context, actor Actor, pr *models.PullRequest, from, to models.PRStatus) {
	e := base(audit.CategoryMerge, audit.EventStatusTransition, actor)
	e.PullRequestID = ptrID(pr.ID)
	e.ProjectID = ptrID(pr.ProjectID)
	e.Details = map[string]string{"from": string(from), "to": string(to)}
	l.Log(ctx, e)
}

// --- Admin Events ---

// RuleCreated logs the creation of a branch-protection rule.
func (l *Logger) RuleCreated(ctx context.Context, actor Actor, rule *models.BranchProtectionRule) {
	l.Log(ctx, ruleEvent(audit.EventRuleCreated, actor, rule))
}

// RuleUpdated logs a change to a branch-protection rule.
func (l *Logger) RuleUpdated(ctx context.Context, actor Actor, rule *models.BranchProtectionRule) {
	l.Log(ctx, ruleEvent(audit.EventRuleUpdated, actor, rule))
}

// RuleDeactivated logs the soft deletion of a branch-protection rule.
func (l *Logger) RuleDeactivated(ctx context.Context, actor Actor, rule *models.BranchProtectionRule) {
	l.Log(ctx, ruleEvent(audit.EventRuleDeactivated, actor, rule))
}

func ruleEvent(eventType string, actor Actor, rule *models.BranchProtectionRule) audit.Event {
	e := base(audit.CategoryAdmin, eventType, actor)
	e.ProjectID = ptrID(rule.ProjectID)
	e.Details = map[string]string{
		"rule_id":        rule.ID.Hex(),
		"branch_pattern": rule.BranchPattern,
	}
	return e
}

func ptrID(id primitive.ObjectID) *primitive.ObjectID {
	if id.IsZero() {
		return nil
	}
	return &id
}
