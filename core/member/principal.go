package member

// Principal is the authenticated caller, as described by the identity provider session token.
type Principal struct {
	UserID       string
	Email        string
	Name         string
	OrgID        string
	OrgSlug      string
	OrgRole      string
	PlatformRole string
}

func (p Principal) IsPlatformAdmin() bool { return p.PlatformRole == PlatformAdmin }
func (p Principal) IsCoordinator() bool   { return p.OrgRole == RoleCoordinator }
func (p Principal) IsTrainer() bool       { return p.OrgRole == RoleTrainer }
func (p Principal) IsStudent() bool       { return NormalizeRole(p.OrgRole) == RoleStudent }

// CanManageSchool reports whether p may administrate the school of their organization.
func (p Principal) CanManageSchool() bool {
	return p.IsPlatformAdmin() || p.IsCoordinator()
}

// Kind names the role record the Principal maps to.
func (p Principal) Kind() string {
	switch {
	case p.IsCoordinator():
		return "coordinator"
	case p.IsTrainer():
		return "trainer"
	case p.IsStudent():
		return "student"
	case p.IsPlatformAdmin():
		return "platform_admin"
	}
	return ""
}
