// internal/app/store/protection/match.go
package protectionstore

import (
	"path"
	"strings"

	"github.com/dalemusser/reviewhub/internal/domain/models"
)

// MatchPattern reports whether branch matches a rule's branch pattern.
// Patterns use shell glob syntax where "*" does not cross "/", so
// "release/*" covers "release/1.2" but not "release/1.2/hotfix".
func MatchPattern(pattern, branch string) bool {
	if pattern == branch {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	ok, err := path.Match(pattern, branch)
	return err == nil && ok
}

// BestMatch picks the active rule that governs branch: an exact pattern wins
// over any glob, and among globs the longest pattern wins.
func BestMatch(rules []models.BranchProtectionRule, branch string) (models.BranchProtectionRule, bool) {
	var best models.BranchProtectionRule
	found := false
	for _, r := range rules {
		if !r.IsActive || !MatchPattern(r.BranchPattern, branch) {
			continue
		}
		if r.BranchPattern == branch {
			return r, true
		}
		if !found || len(r.BranchPattern) > len(best.BranchPattern) {
			best, found = r, true
		}
	}
	return best, found
}
