// internal/app/features/protection/handler.go
package protection

import (
	"net/http"
	"strings"

	apierrors "github.com/dalemusser/reviewhub/internal/app/features/errors"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves branch-protection rule management.
type Handler struct {
	Rules    *protectionstore.Store
	AuditLog *auditlog.Logger
	ErrLog   *apierrors.ErrorLogger
	Log      *zap.Logger
}

// NewHandler constructs a protection Handler.
func NewHandler(rules *protectionstore.Store, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Rules:    rules,
		AuditLog: auditLog,
		ErrLog:   apierrors.NewErrorLogger(logger),
		Log:      logger,
	}
}

// statusChecksRequest is the nested form of the status check settings, as
// returned by GET.
type statusChecksRequest struct {
	Strict   *bool     `json:"strict"`
	Contexts *[]string `json:"contexts"`
}

// ruleRequest is the body of PUT and POST. Settings may be given flat
// ("strict", "contexts") or nested under requiredStatusChecks.
type ruleRequest struct {
	ProjectID     string `json:"projectId"`
	BranchPattern string `json:"branchPattern"`
	models.RuleSettings
	RequiredStatusChecks *statusChecksRequest `json:"requiredStatusChecks"`
}

func (req ruleRequest) settings() models.RuleSettings {
	st := req.RuleSettings
	if n := req.RequiredStatusChecks; n != nil {
		if n.Strict != nil {
			st.StrictStatusChecks = n.Strict
		}
		if n.Contexts != nil {
			st.StatusCheckContexts = n.Contexts
		}
	}
	return st
}

// decodeRule reads and validates a rule body.
func decodeRule(w http.ResponseWriter, r *http.Request) (ruleRequest, primitive.ObjectID, bool) {
	var req ruleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, "invalid request body")
		return req, primitive.NilObjectID, false
	}
	projectID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.ProjectID))
	if err != nil {
		respond.BadRequest(w, "projectId is required")
		return req, primitive.NilObjectID, false
	}
	if strings.TrimSpace(req.BranchPattern) == "" {
		respond.BadRequest(w, "branchPattern is required")
		return req, primitive.NilObjectID, false
	}
	return req, projectID, true
}

// projectParam reads the required projectId query parameter.
func projectParam(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(query.Get(r, "projectId"))
	if err != nil {
		respond.BadRequest(w, "projectId is required")
		return primitive.NilObjectID, false
	}
	return id, true
}

// canManage reports whether the caller may change rules.
func canManage(r *http.Request) bool {
	role, _, _, _ := authz.UserCtx(r)
	return authz.CanManageProtection(role)
}

// requireManager writes a 403 unless the caller may change rules.
func requireManager(w http.ResponseWriter, r *http.Request) bool {
	if !canManage(r) {
		respond.Forbidden(w, "managing branch protection requires a maintainer or admin")
		return false
	}
	return true
}
