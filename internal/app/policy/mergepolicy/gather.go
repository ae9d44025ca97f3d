// internal/app/policy/mergepolicy/gather.go
package mergepolicy

import (
	"context"

	"github.com/dalemusser/reviewhub/internal/app/system/statuschecks"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// FreshnessChecker reports whether source contains the head of target.
type FreshnessChecker interface {
	IsUpToDate(ctx context.Context, projectID primitive.ObjectID, source, target string) (bool, error)
}

// Gatherer fills in the parts of a ReviewState that need I/O. Provider errors
// fail closed: unavailable checks fail and unknown freshness is stale.
type Gatherer struct {
	Checks statuschecks.Provider
	// Freshness may be nil when no project repositories are configured, in
	// which case every branch counts as up to date.
	Freshness FreshnessChecker
	Log       *zap.Logger
}

// Gather builds the ReviewState for pr under rule. Only the inputs rule
// actually needs are fetched.
func (g *Gatherer) Gather(ctx context.Context, pr models.PullRequest, rule *models.BranchProtectionRule) ReviewState {
	st := StateFromPR(pr)
	if rule == nil || !rule.IsActive {
		return st
	}
	r := Normalize(*rule)
	contexts := r.RequiredStatusChecks.Contexts
	if len(contexts) == 0 {
		return st
	}

	if g.Checks == nil {
		st.ChecksUnavailable = true
	} else {
		passing, err := g.Checks.Passing(ctx, pr, contexts)
		if err != nil {
			g.logger().Warn("status checks unavailable",
				zap.String("pull_request_id", pr.ID.Hex()),
				zap.Error(err))
			st.ChecksUnavailable = true
		} else {
			st.Checks = passing
		}
	}

	if !r.RequiredStatusChecks.Strict {
		return st
	}
	if g.Freshness == nil {
		st.UpToDate = true
		return st
	}
	ok, err := g.Freshness.IsUpToDate(ctx, pr.ProjectID, pr.SourceBranch, pr.TargetBranch)
	if err != nil {
		g.logger().Warn("branch freshness unknown",
			zap.String("pull_request_id", pr.ID.Hex()),
			zap.String("source_branch", pr.SourceBranch),
			zap.String("target_branch", pr.TargetBranch),
			zap.Error(err))
		return st
	}
	st.UpToDate = ok
	return st
}

func (g *Gatherer) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}
