package member

// Actor is a Principal resolved against the school addressed by a request,
// along with the role records it owns in that school.
type Actor struct {
	Principal

	SchoolID      string
	SchoolOrgID   string
	CoordinatorID string
	TrainerID     string
	StudentID     string
}

// IsSchoolAdmin reports whether the Actor may administrate the resolved school.
func (a Actor) IsSchoolAdmin() bool {
	return a.IsPlatformAdmin() || (a.IsCoordinator() && a.CoordinatorID != "")
}

// Lookup selects a role record (coordinator, trainer or student) of a school.
// The first non-empty field wins, in declaration order.
type Lookup struct {
	ID     string
	UserID string
	Email  string
}

func (lk Lookup) IsEmpty() bool {
	return lk.ID == "" && lk.UserID == "" && lk.Email == ""
}

// SyncResult tells how a role record was matched with an identity user.
type SyncResult struct {
	Linked  bool `json:"linked"`
	Created bool `json:"created"`
}
