package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

// Sync statuses of a Student's membership at the identity provider.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncInvited = "invited"
	SyncFailed  = "failed"
)

var SyncStatuses = []string{SyncPending, SyncSynced, SyncInvited, SyncFailed}

type Student struct {
	ID            string      `db:"id" json:"id"`
	SchoolID      string      `db:"school_id" json:"schoolId"`
	UserID        null.String `db:"user_id" json:"userId"`
	Name          string      `db:"name" json:"name"`
	Email         string      `db:"email" json:"email"`
	Phone         string      `db:"phone" json:"phone"`
	RollNumber    string      `db:"roll_number" json:"rollNumber"`
	Grade         string      `db:"grade" json:"grade"`
	GuardianName  string      `db:"guardian_name" json:"guardianName"`
	GuardianPhone string      `db:"guardian_phone" json:"guardianPhone"`
	SyncStatus    string      `db:"sync_status" json:"syncStatus"`
	SyncError     null.String `db:"sync_error" json:"syncError"`
	SyncedAt      null.Time   `db:"synced_at" json:"syncedAt"`
	BatchIDs      []string    `db:"-" json:"batchIds,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// PendingSync is a Student waiting for its identity membership, along with its school's organization.
type PendingSync struct {
	Student
	OrgID string `db:"org_id"`
}

type NewStudent struct {
	Name          string `json:"name" validate:"required,max=150"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"max=30"`
	RollNumber    string `json:"rollNumber" validate:"max=50"`
	Grade         string `json:"grade" validate:"max=50"`
	GuardianName  string `json:"guardianName" validate:"max=150"`
	GuardianPhone string `json:"guardianPhone" validate:"max=30"`
	BatchID       string `json:"batchId" validate:"omitempty,uuid"`
}

func (ns *NewStudent) Clean() {
	ns.Name = core.CleanName(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.Grade = core.CleanString(ns.Grade)
	ns.GuardianName = core.CleanName(ns.GuardianName)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	ns.BatchID = core.CleanString(ns.BatchID)
}

func (ns *NewStudent) Validate(ctx context.Context, schoolID string, validate *validator.Validate, svc *Service) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, schoolID, ns.Email)
}

type UpdateStudent struct {
	Name          *string `json:"name" validate:"omitempty,notblank,max=150"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	RollNumber    *string `json:"rollNumber" validate:"omitempty,max=50"`
	Grade         *string `json:"grade" validate:"omitempty,max=50"`
	GuardianName  *string `json:"guardianName" validate:"omitempty,max=150"`
	GuardianPhone *string `json:"guardianPhone" validate:"omitempty,max=30"`
}

func (us *UpdateStudent) Validate(ctx context.Context, orig Student, validate *validator.Validate, svc *Service) error {
	for _, s := range []*string{us.Name, us.Phone, us.RollNumber, us.Grade, us.GuardianName, us.GuardianPhone} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if us.Name != nil {
		*us.Name = core.CleanName(*us.Name)
	}
	if us.Email != nil {
		*us.Email = core.CleanString(*us.Email, true /* lower */)
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Email != nil && *us.Email != orig.Email {
		return svc.CheckUniqueness(ctx, orig.SchoolID, *us.Email, orig)
	}
	return nil
}

func (us UpdateStudent) Apply(s *Student) {
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.Email != nil && *us.Email != "" && *us.Email != s.Email {
		s.Email = *us.Email
		// the identity user owning the new address has to be reconciled
		s.UserID = null.String{}
		s.SyncStatus = SyncPending
	}
	if us.Phone != nil {
		s.Phone = *us.Phone
	}
	if us.RollNumber != nil {
		s.RollNumber = *us.RollNumber
	}
	if us.Grade != nil {
		s.Grade = *us.Grade
	}
	if us.GuardianName != nil {
		s.GuardianName = *us.GuardianName
	}
	if us.GuardianPhone != nil {
		s.GuardianPhone = *us.GuardianPhone
	}
}

type QueryFilter struct {
	Search     string `query:"search"`
	BatchID    string `query:"batchId"`
	SyncStatus string `query:"syncStatus"`

	// scopes, set from the Actor
	TrainerID string   `query:"-"`
	IDs       []string `query:"-"`
}

// ImportReport sums up a CSV import.
type ImportReport struct {
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Invited    int           `json:"invited"`
	Linked     int           `json:"linked"`
	SyncFailed int           `json:"syncFailed"`
	Errors     []ImportError `json:"errors"`
}

// ImportError reports a rejected CSV row. Row is 1-based and counts the header line.
type ImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email"`
	Error string `json:"error"`
}
