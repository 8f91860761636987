package metadata

const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleCollector = "collector"
)

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
	Areas []string `json:"areas,omitempty"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// CanDesign reports whether the user may edit survey designs and see all data.
func (u *UserContext) CanDesign() bool {
	return u.IsAdmin() || u.HasRole(RoleManager)
}
