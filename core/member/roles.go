package member

// Roles held by organization members at the identity provider.
const (
	RoleCoordinator = "org:admin"
	RoleTrainer     = "org:trainer"
	RoleStudent     = "org:student"

	// RoleMember is the provider's default role; it is treated as RoleStudent.
	RoleMember = "org:member"

	// PlatformAdmin is the platform role of the staff curating schools and the shared catalog.
	PlatformAdmin = "admin"
)

var (
	OrgRoles = []string{RoleCoordinator, RoleTrainer, RoleStudent}

	rolePriorities = map[string]int{
		RoleCoordinator: 30,
		RoleTrainer:     20,
		RoleStudent:     10,
		RoleMember:      10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Trainer", Value: RoleTrainer},
		{Name: "Coordinator", Value: RoleCoordinator},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

// NormalizeRole maps provider aliases onto our org roles.
func NormalizeRole(role string) string {
	if role == RoleMember {
		return RoleStudent
	}
	return role
}

func IsOrgRole(role string) bool {
	for _, r := range OrgRoles {
		if r == role {
			return true
		}
	}
	return false
}
