package batch

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

type Batch struct {
	ID          string      `db:"id" json:"id"`
	SchoolID    string      `db:"school_id" json:"schoolId"`
	LevelID     null.String `db:"level_id" json:"levelId"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	StartDate   null.Time   `db:"start_date" json:"startDate"`
	EndDate     null.Time   `db:"end_date" json:"endDate"`
	IsActive    bool        `db:"is_active" json:"isActive"`
	TrainerIDs  []string    `db:"-" json:"trainerIds"`
	StudentIDs  []string    `db:"-" json:"studentIds"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

type NewBatch struct {
	Name        string     `json:"name" validate:"required,max=150"`
	Description string     `json:"description" validate:"max=2000"`
	LevelID     string     `json:"levelId" validate:"omitempty,uuid"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	TrainerIDs  []string   `json:"trainerIds" validate:"dive,uuid"`
	StudentIDs  []string   `json:"studentIds" validate:"dive,uuid"`
}

func (nb *NewBatch) Validate(ctx context.Context, schoolID string, validate *validator.Validate, svc *Service) error {
	nb.Name = core.CleanName(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	nb.LevelID = core.CleanString(nb.LevelID)
	nb.TrainerIDs = core.UniqueStrings(nb.TrainerIDs)
	nb.StudentIDs = core.UniqueStrings(nb.StudentIDs)

	if err := validate.Struct(nb); err != nil {
		return err
	}
	if err := checkDates(nb.StartDate, nb.EndDate); err != nil {
		return err
	}
	if err := svc.CheckNameUniqueness(ctx, schoolID, nb.Name); err != nil {
		return err
	}
	if err := svc.CheckLevel(ctx, nb.LevelID); err != nil {
		return err
	}
	return svc.CheckMembers(ctx, schoolID, nb.TrainerIDs, nb.StudentIDs)
}

type UpdateBatch struct {
	Name        *string    `json:"name" validate:"omitempty,notblank,max=150"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	LevelID     *string    `json:"levelId" validate:"omitempty,uuid"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	IsActive    *bool      `json:"isActive"`
}

func (ub *UpdateBatch) Validate(ctx context.Context, orig Batch, validate *validator.Validate, svc *Service) error {
	if ub.Name != nil {
		*ub.Name = core.CleanName(*ub.Name)
	}
	if ub.Description != nil {
		*ub.Description = core.CleanString(*ub.Description)
	}
	if ub.LevelID != nil {
		*ub.LevelID = core.CleanString(*ub.LevelID)
	}

	if err := validate.Struct(ub); err != nil {
		return err
	}

	start, end := orig.StartDate.Ptr(), orig.EndDate.Ptr()
	if ub.StartDate != nil {
		start = ub.StartDate
	}
	if ub.EndDate != nil {
		end = ub.EndDate
	}
	if err := checkDates(start, end); err != nil {
		return err
	}
	if ub.Name != nil && *ub.Name != orig.Name {
		if err := svc.CheckNameUniqueness(ctx, orig.SchoolID, *ub.Name, orig); err != nil {
			return err
		}
	}
	if ub.LevelID != nil {
		return svc.CheckLevel(ctx, *ub.LevelID)
	}
	return nil
}

func (ub UpdateBatch) Apply(b *Batch) {
	if ub.Name != nil {
		b.Name = *ub.Name
	}
	if ub.Description != nil {
		b.Description = *ub.Description
	}
	if ub.LevelID != nil {
		b.LevelID = null.NewString(*ub.LevelID, *ub.LevelID != "")
	}
	if ub.StartDate != nil {
		b.StartDate = null.TimeFrom(ub.StartDate.UTC())
	}
	if ub.EndDate != nil {
		b.EndDate = null.TimeFrom(ub.EndDate.UTC())
	}
	if ub.IsActive != nil {
		b.IsActive = *ub.IsActive
	}
}

// SetMembers is the payload of the trainers/students replace and add operations.
type SetMembers struct {
	TrainerIDs []string `json:"trainerIds" validate:"dive,uuid"`
	StudentIDs []string `json:"studentIds" validate:"dive,uuid"`
}

func (sm *SetMembers) Validate(ctx context.Context, schoolID string, validate *validator.Validate, svc *Service) error {
	sm.TrainerIDs = core.UniqueStrings(sm.TrainerIDs)
	sm.StudentIDs = core.UniqueStrings(sm.StudentIDs)
	if err := validate.Struct(sm); err != nil {
		return err
	}
	return svc.CheckMembers(ctx, schoolID, sm.TrainerIDs, sm.StudentIDs)
}

type QueryFilter struct {
	Search   string `query:"search"`
	LevelID  string `query:"levelId"`
	IsActive *bool  `query:"isActive"`

	// scopes, set from the Actor
	TrainerID string `query:"-"`
	StudentID string `query:"-"`
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return core.NewFieldError("endDate", ErrEndBeforeStart)
	}
	return nil
}
