// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/reviewhub/internal/app/system/auth"
)

// Roles carried in the credential's role claim.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleMaintainer = "maintainer"
	RoleMember     = "member"
)

// UserCtx returns the user's role (lowercased), name, id, and a found flag.
// If no user is present it returns "visitor", "", "", false.
func UserCtx(r *http.Request) (role string, name string, userID string, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok || user.ID == "" {
		return "visitor", "", "", false
	}
	return strings.ToLower(user.Role), user.Name, user.ID, true
}

// IsAdmin reports whether the current request's user is an admin.
// Note: Superadmins are also considered admins for permission purposes.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && isAdminRole(role)
}

// CanForceMerge reports whether role may bypass merge policy.
func CanForceMerge(role string) bool {
	return isAdminRole(strings.ToLower(strings.TrimSpace(role)))
}

// CanManageProtection reports whether role may create, change or
// deactivate branch-protection rules.
func CanManageProtection(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	return isAdminRole(role) || role == RoleMaintainer
}

// CanReadAudit reports whether role may read the force-merge audit trail.
func CanReadAudit(role string) bool {
	return isAdminRole(strings.ToLower(strings.TrimSpace(role)))
}

func isAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// CanModerate reports whether role may edit or remove other users' content.
func CanModerate(role string) bool {
	return isAdminRole(strings.ToLower(strings.TrimSpace(role)))
}
