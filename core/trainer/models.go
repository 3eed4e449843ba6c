package trainer

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

type Trainer struct {
	ID             string      `db:"id" json:"id"`
	SchoolID       string      `db:"school_id" json:"schoolId"`
	UserID         null.String `db:"user_id" json:"userId"`
	Name           string      `db:"name" json:"name"`
	Email          string      `db:"email" json:"email"`
	Phone          string      `db:"phone" json:"phone"`
	Specialization string      `db:"specialization" json:"specialization"`
	Bio            string      `db:"bio" json:"bio"`
	PhotoURL       null.String `db:"photo_url" json:"photoUrl"`
	IsVerified     bool        `db:"is_verified" json:"isVerified"`
	LevelIDs       []string    `db:"-" json:"levelIds"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
}

type NewTrainer struct {
	Name           string   `json:"name" validate:"required,max=150"`
	Email          string   `json:"email" validate:"required,email"`
	Phone          string   `json:"phone" validate:"max=30"`
	Specialization string   `json:"specialization" validate:"max=150"`
	Bio            string   `json:"bio" validate:"max=2000"`
	PhotoURL       string   `json:"photoUrl" validate:"omitempty,url"`
	LevelIDs       []string `json:"levelIds" validate:"dive,uuid"`
}

func (nt *NewTrainer) Validate(ctx context.Context, schoolID string, validate *validator.Validate, svc *Service) error {
	nt.Name = core.CleanName(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Specialization = core.CleanString(nt.Specialization)
	nt.Bio = core.CleanString(nt.Bio)
	nt.PhotoURL = core.CleanString(nt.PhotoURL)
	nt.LevelIDs = core.UniqueStrings(nt.LevelIDs)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	if err := svc.CheckUniqueness(ctx, schoolID, nt.Email); err != nil {
		return err
	}
	return svc.CheckLevels(ctx, nt.LevelIDs)
}

// UpdateTrainer holds the profile fields. Verification has its own operations.
type UpdateTrainer struct {
	Name           *string `json:"name" validate:"omitempty,notblank,max=150"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	Specialization *string `json:"specialization" validate:"omitempty,max=150"`
	Bio            *string `json:"bio" validate:"omitempty,max=2000"`
	PhotoURL       *string `json:"photoUrl" validate:"omitempty,url"`
}

func (ut *UpdateTrainer) Validate(ctx context.Context, orig Trainer, validate *validator.Validate, svc *Service) error {
	for _, s := range []*string{ut.Name, ut.Phone, ut.Specialization, ut.Bio, ut.PhotoURL} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if ut.Name != nil {
		*ut.Name = core.CleanName(*ut.Name)
	}
	if ut.Email != nil {
		*ut.Email = core.CleanString(*ut.Email, true /* lower */)
	}

	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.Email != nil && *ut.Email != orig.Email {
		return svc.CheckUniqueness(ctx, orig.SchoolID, *ut.Email, orig)
	}
	return nil
}

func (ut UpdateTrainer) Apply(t *Trainer) {
	if ut.Name != nil {
		t.Name = *ut.Name
	}
	if ut.Email != nil && *ut.Email != "" {
		t.Email = *ut.Email
	}
	if ut.Phone != nil {
		t.Phone = *ut.Phone
	}
	if ut.Specialization != nil {
		t.Specialization = *ut.Specialization
	}
	if ut.Bio != nil {
		t.Bio = *ut.Bio
	}
	if ut.PhotoURL != nil {
		t.PhotoURL = null.NewString(*ut.PhotoURL, *ut.PhotoURL != "")
	}
}

type SetLevels struct {
	LevelIDs []string `json:"levelIds" validate:"dive,uuid"`
}

func (sl *SetLevels) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	sl.LevelIDs = core.UniqueStrings(sl.LevelIDs)
	if err := validate.Struct(sl); err != nil {
		return err
	}
	return svc.CheckLevels(ctx, sl.LevelIDs)
}

type QueryFilter struct {
	Search     string `query:"search"`
	IsVerified *bool  `query:"isVerified"`
	LevelID    string `query:"levelId"`
}
