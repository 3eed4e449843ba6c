package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

// School is the tenant: it maps 1:1 to an organization of the identity provider.
type School struct {
	ID           string      `db:"id" json:"id"`
	OrgID        string      `db:"org_id" json:"orgId"`
	Name         string      `db:"name" json:"name"`
	Slug         string      `db:"slug" json:"slug"`
	Address      string      `db:"address" json:"address"`
	City         string      `db:"city" json:"city"`
	ContactEmail string      `db:"contact_email" json:"contactEmail"`
	ContactPhone string      `db:"contact_phone" json:"contactPhone"`
	LogoURL      null.String `db:"logo_url" json:"logoUrl"`
	IsActive     bool        `db:"is_active" json:"isActive"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"` // UTC
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"` // UTC
}

// Coordinator administrates a School.
type Coordinator struct {
	ID        string      `db:"id" json:"id"`
	SchoolID  string      `db:"school_id" json:"schoolId"`
	UserID    null.String `db:"user_id" json:"userId"`
	Name      string      `db:"name" json:"name"`
	Email     string      `db:"email" json:"email"`
	Phone     string      `db:"phone" json:"phone"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Name         string `json:"name" validate:"required,max=150"`
	Slug         string `json:"slug" validate:"omitempty,slug,max=60"`
	OrgID        string `json:"orgId" validate:"omitempty,max=64"`
	Address      string `json:"address" validate:"max=255"`
	City         string `json:"city" validate:"max=100"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone string `json:"contactPhone" validate:"max=30"`
	LogoURL      string `json:"logoUrl" validate:"omitempty,url"`
}

func (ns *NewSchool) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanName(ns.Name)
	ns.Slug = core.CleanString(ns.Slug, true /* lower */)
	if ns.Slug == "" {
		ns.Slug = core.Slugify(ns.Name)
	}
	ns.OrgID = core.CleanString(ns.OrgID)
	ns.Address = core.CleanString(ns.Address)
	ns.City = core.CleanString(ns.City)
	ns.ContactEmail = core.CleanString(ns.ContactEmail, true /* lower */)
	ns.ContactPhone = core.CleanString(ns.ContactPhone)
	ns.LogoURL = core.CleanString(ns.LogoURL)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.Slug, ns.OrgID)
}

// UpdateSchool defines what information may be provided to modify an existing School.
type UpdateSchool struct {
	Name         *string `json:"name" validate:"omitempty,notblank,max=150"`
	Slug         *string `json:"slug" validate:"omitempty,slug,max=60"`
	Address      *string `json:"address" validate:"omitempty,max=255"`
	City         *string `json:"city" validate:"omitempty,max=100"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone *string `json:"contactPhone" validate:"omitempty,max=30"`
	LogoURL      *string `json:"logoUrl" validate:"omitempty,url"`
	IsActive     *bool   `json:"isActive"`
}

func (us *UpdateSchool) Validate(ctx context.Context, orig School, validate *validator.Validate, svc *Service) error {
	if us.Name != nil {
		*us.Name = core.CleanName(*us.Name)
	}
	cleanPtr(us.Slug, true)
	cleanPtr(us.Address, false)
	cleanPtr(us.City, false)
	cleanPtr(us.ContactEmail, true)
	cleanPtr(us.ContactPhone, false)
	cleanPtr(us.LogoURL, false)

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Slug != nil && *us.Slug != orig.Slug {
		return svc.CheckUniqueness(ctx, *us.Slug, "", orig)
	}
	return nil
}

// Apply copies the provided fields onto s.
func (us UpdateSchool) Apply(s *School) {
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.Slug != nil && *us.Slug != "" {
		s.Slug = *us.Slug
	}
	if us.Address != nil {
		s.Address = *us.Address
	}
	if us.City != nil {
		s.City = *us.City
	}
	if us.ContactEmail != nil {
		s.ContactEmail = *us.ContactEmail
	}
	if us.ContactPhone != nil {
		s.ContactPhone = *us.ContactPhone
	}
	if us.LogoURL != nil {
		s.LogoURL = null.NewString(*us.LogoURL, *us.LogoURL != "")
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
}

// NewCoordinator contains information needed to add a Coordinator to a School.
type NewCoordinator struct {
	Name  string `json:"name" validate:"required,max=150"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=30"`
}

func (nc *NewCoordinator) Validate(ctx context.Context, schoolID string, validate *validator.Validate, svc *Service) error {
	nc.Name = core.CleanName(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Phone = core.CleanString(nc.Phone)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckCoordinatorUniqueness(ctx, schoolID, nc.Email)
}

type QueryFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"isActive"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single School by one of its unique keys.
type GetFilter struct {
	ID    string
	OrgID string
	Slug  string
}

func cleanPtr(s *string, lower bool) {
	if s != nil {
		*s = core.CleanString(*s, lower)
	}
}
