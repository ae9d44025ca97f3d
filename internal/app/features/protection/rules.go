// internal/app/features/protection/rules.go
package protection

import (
	"context"
	"errors"
	"net/http"
	"strings"

	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeGet handles GET /branch-protection/rules?projectId=&branchPattern=.
// With a branchPattern it returns the active rule; without one it lists the
// project's active rules, falling back to the default branch's rule when the
// project has none. A missing rule is materialized with the defaults only
// for callers who may manage protection; everyone else sees the defaults
// unsaved, so a read never starts protecting a branch.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get protection rule")
	defer cancel()

	pattern := strings.TrimSpace(query.Get(r, "branchPattern"))
	if pattern == "" {
		rules, err := h.Rules.ListByProject(ctx, projectID, false)
		if err != nil {
			h.ErrLog.Write(w, r, "list protection rules", err)
			return
		}
		if len(rules) == 0 {
			rule, err := h.activeOrDefault(ctx, r, projectID, models.DefaultBranchPattern)
			if err != nil {
				h.ErrLog.Write(w, r, "get protection rule", err)
				return
			}
			rules = []models.BranchProtectionRule{rule}
		}
		respond.JSON(w, http.StatusOK, map[string]any{"rules": rules})
		return
	}

	rule, err := h.activeOrDefault(ctx, r, projectID, pattern)
	if err != nil {
		h.ErrLog.Write(w, r, "get protection rule", err)
		return
	}
	respond.JSON(w, http.StatusOK, rule)
}

// activeOrDefault returns the active rule for (projectID, pattern). Managers
// materialize the default rule on first read; other callers get it unsaved.
func (h *Handler) activeOrDefault(ctx context.Context, r *http.Request, projectID primitive.ObjectID, pattern string) (models.BranchProtectionRule, error) {
	if canManage(r) {
		return h.Rules.GetActive(ctx, projectID, pattern)
	}
	rule, err := h.Rules.FindActive(ctx, projectID, pattern)
	if errors.Is(err, protectionstore.ErrNotFound) {
		return models.DefaultRule(projectID, pattern), nil
	}
	return rule, err
}

// ServeHistory handles GET /branch-protection/rules/history?projectId=.
// Deactivated rules are included.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "protection rule history")
	defer cancel()

	rules, err := h.Rules.ListByProject(ctx, projectID, true)
	if err != nil {
		h.ErrLog.Write(w, r, "protection rule history", err)
		return
	}
	if rules == nil {
		rules = []models.BranchProtectionRule{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// ServeUpsert handles PUT /branch-protection/rules. Fields left out of the
// body keep their current values.
func (h *Handler) ServeUpsert(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	req, projectID, ok := decodeRule(w, r)
	if !ok {
		return
	}
	actor := auditlog.ActorFromRequest(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "upsert protection rule")
	defer cancel()

	rule, err := h.Rules.Upsert(ctx, projectID, req.BranchPattern, req.settings(), actor.ID)
	if err != nil {
		h.ErrLog.Write(w, r, "upsert protection rule", err)
		return
	}
	h.AuditLog.RuleUpdated(ctx, actor, &rule)
	respond.JSON(w, http.StatusOK, rule)
}

// ServeCreate handles POST /branch-protection/rules. Unspecified settings
// take the defaults; 409 when an active rule already exists for the pattern.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	req, projectID, ok := decodeRule(w, r)
	if !ok {
		return
	}
	actor := auditlog.ActorFromRequest(r)

	rule := models.DefaultRule(projectID, req.BranchPattern)
	req.settings().Apply(&rule)
	rule.CreatedBy = actor.ID
	rule.UpdatedBy = actor.ID

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create protection rule")
	defer cancel()

	created, err := h.Rules.Create(ctx, rule)
	if err != nil {
		h.ErrLog.Write(w, r, "create protection rule", err)
		return
	}
	h.AuditLog.RuleCreated(ctx, actor, &created)
	h.Log.Info("protection rule created",
		zap.String("rule_id", created.ID.Hex()),
		zap.String("project_id", projectID.Hex()),
		zap.String("branch_pattern", created.BranchPattern))
	respond.JSON(w, http.StatusCreated, created)
}

// ServeDeactivate handles DELETE /branch-protection/rules/{id}. The rule is
// kept as history.
func (h *Handler) ServeDeactivate(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}
	actor := auditlog.ActorFromRequest(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "deactivate protection rule")
	defer cancel()

	rule, err := h.Rules.Deactivate(ctx, id, actor.ID)
	if err != nil {
		h.ErrLog.Write(w, r, "deactivate protection rule", err)
		return
	}
	h.AuditLog.RuleDeactivated(ctx, actor, &rule)
	respond.JSON(w, http.StatusOK, rule)
}
