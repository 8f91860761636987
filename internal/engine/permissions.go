package engine

import (
	"strings"

	"survey-backend/internal/metadata"
)

// CheckRole verifies that the user holds at least one of roles. Admin
// bypasses the check.
func CheckRole(user *metadata.UserContext, roles ...string) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if user.IsAdmin() || hasRoleIntersection(user.Roles, roles) {
		return nil
	}
	return ForbiddenError("Permission denied for role " + strings.Join(user.Roles, ","))
}

// CheckRecordAccess decides whether user may read or write the rounds of
// base. Admins and managers see everything; collectors see records assigned
// to them or located in one of their areas, sub-areas included.
func CheckRecordAccess(user *metadata.UserContext, base *metadata.RosterRecord, tree *metadata.AreaTree) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if user.CanDesign() {
		return nil
	}
	if base.AssigneeID != "" && base.AssigneeID == user.ID {
		return nil
	}
	if tree != nil && tree.WithinAny(base.AreaCode, user.Areas) {
		return nil
	}
	return ForbiddenError("Record is not assigned to you")
}

func hasRoleIntersection(userRoles, allowed []string) bool {
	for _, ur := range userRoles {
		for _, r := range allowed {
			if strings.EqualFold(ur, r) {
				return true
			}
		}
	}
	return false
}
