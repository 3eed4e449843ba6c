package school

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

var (
	ErrNotFound            = core.NewNotFoundError("school")
	ErrCoordinatorNotFound = core.NewNotFoundError("coordinator")

	ErrSlugExists        = errors.New("a school with this slug already exists")
	ErrOrgExists         = errors.New("a school is already linked to this organization")
	ErrCoordinatorExists = errors.New("a coordinator with this email already exists")
	ErrRemoveSelf        = errors.New("you cannot remove yourself")
)

type (
	Repository interface {
		// CheckSchoolUniqueness returns ErrSlugExists or ErrOrgExists. Empty values are not checked.
		CheckSchoolUniqueness(ctx context.Context, slug, orgID string, excluded ...School) error
		CreateSchool(ctx context.Context, s School) (School, error)
		// QuerySchools applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on School.Name, School.Slug or School.City.
		QuerySchools(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]School, error)
		GetSchool(ctx context.Context, filter GetFilter) (School, error)
		UpdateSchool(ctx context.Context, s School) (School, error)
		DeleteSchool(ctx context.Context, id string) error

		CheckCoordinatorUniqueness(ctx context.Context, schoolID, email string) error
		CreateCoordinator(ctx context.Context, c Coordinator) (Coordinator, error)
		QueryCoordinators(ctx context.Context, schoolID string) ([]Coordinator, error)
		GetCoordinator(ctx context.Context, schoolID string, lookup member.Lookup) (Coordinator, error)
		UpdateCoordinator(ctx context.Context, c Coordinator) (Coordinator, error)
		DeleteCoordinator(ctx context.Context, schoolID, id string) error
	}

	Service struct {
		repo       Repository
		idp        core.IdentityProvider
		reconciler *member.Reconciler
		logger     core.Logger
	}
)

func NewService(repo Repository, idp core.IdentityProvider, reconciler *member.Reconciler, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(idp, "idp"),
		vala.IsNotNil(reconciler, "reconciler"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, idp: idp, reconciler: reconciler, logger: logger}
}

func (svc *Service) CheckUniqueness(ctx context.Context, slug, orgID string, excluded ...School) error {
	if err := svc.repo.CheckSchoolUniqueness(ctx, slug, orgID, excluded...); err != nil {
		var field string
		switch err {
		case ErrSlugExists:
			field = "slug"
		case ErrOrgExists:
			field = "orgId"
		default:
			return err
		}
		return core.NewFieldError(field, err)
	}
	return nil
}

func (svc *Service) CheckCoordinatorUniqueness(ctx context.Context, schoolID, email string) error {
	if err := svc.repo.CheckCoordinatorUniqueness(ctx, schoolID, email); err != nil {
		if err == ErrCoordinatorExists {
			return core.NewFieldError("email", err)
		}
		return err
	}
	return nil
}

// Create inserts a new School. When ns.OrgID is empty, its organization is created at the identity provider first.
func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	createdOrg := false
	if ns.OrgID == "" {
		orgID, err := svc.idp.CreateOrganization(ctx, ns.Name, ns.Slug)
		if err != nil {
			return School{}, errors.Wrap(err, "creating organization")
		}
		ns.OrgID = orgID
		createdOrg = true
	}

	now := time.Now().UTC()
	sch, err := svc.repo.CreateSchool(ctx, School{
		ID:           uuid.New().String(),
		OrgID:        ns.OrgID,
		Name:         ns.Name,
		Slug:         ns.Slug,
		Address:      ns.Address,
		City:         ns.City,
		ContactEmail: ns.ContactEmail,
		ContactPhone: ns.ContactPhone,
		LogoURL:      null.NewString(ns.LogoURL, ns.LogoURL != ""),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil && createdOrg {
		svc.deleteOrganization(ctx, ns.OrgID)
	}
	return sch, err
}

func (svc *Service) QueryAll(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	filter.Clean()
	return svc.repo.QuerySchools(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByOrg(ctx context.Context, orgID string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{OrgID: orgID})
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, orig School, us UpdateSchool) (School, error) {
	us.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, orig)
}

// Delete removes the School and all of its data, then tries to delete its organization.
func (svc *Service) Delete(ctx context.Context, sch School) error {
	if err := svc.repo.DeleteSchool(ctx, sch.ID); err != nil {
		return err
	}
	svc.deleteOrganization(ctx, sch.OrgID)
	return nil
}

func (svc *Service) deleteOrganization(ctx context.Context, orgID string) {
	if err := svc.idp.DeleteOrganization(ctx, orgID); err != nil && errors.Cause(err) != core.ErrIdentityNotFound {
		svc.logger.Warn(fmt.Sprintf("deleting organization %s", orgID), err)
	}
}

// AddCoordinator creates a Coordinator, then grants them the coordinator role at the identity provider.
// The membership is best effort: failures are logged and the Coordinator is kept.
func (svc *Service) AddCoordinator(ctx context.Context, sch School, nc NewCoordinator) (Coordinator, error) {
	now := time.Now().UTC()
	coord, err := svc.repo.CreateCoordinator(ctx, Coordinator{
		ID:        uuid.New().String(),
		SchoolID:  sch.ID,
		Name:      nc.Name,
		Email:     nc.Email,
		Phone:     nc.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Coordinator{}, err
	}

	res, err := svc.reconciler.Reconcile(ctx, sch.OrgID, coord.Email, member.RoleCoordinator)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("granting coordinator role to %s", coord.Email), err)
		return coord, nil
	}
	if res.UserID != "" {
		coord.UserID = null.StringFrom(res.UserID)
		coord.UpdatedAt = time.Now().UTC()
		if coord, err = svc.repo.UpdateCoordinator(ctx, coord); err != nil {
			return Coordinator{}, err
		}
	}
	return coord, nil
}

func (svc *Service) QueryCoordinators(ctx context.Context, schoolID string) ([]Coordinator, error) {
	return svc.repo.QueryCoordinators(ctx, schoolID)
}

func (svc *Service) GetCoordinator(ctx context.Context, schoolID string, lookup member.Lookup) (Coordinator, error) {
	lookup.Email = core.CleanString(lookup.Email, true /* lower */)
	return svc.repo.GetCoordinator(ctx, schoolID, lookup)
}

// RemoveCoordinator deletes a Coordinator other than `actorUserID` and revokes their membership (best effort).
func (svc *Service) RemoveCoordinator(ctx context.Context, sch School, id, actorUserID string) error {
	coord, err := svc.repo.GetCoordinator(ctx, sch.ID, member.Lookup{ID: id})
	if err != nil {
		return err
	}
	if actorUserID != "" && coord.UserID.String == actorUserID {
		return core.NewValidationError(ErrRemoveSelf)
	}
	if err := svc.repo.DeleteCoordinator(ctx, sch.ID, coord.ID); err != nil {
		return err
	}
	if err := svc.reconciler.Revoke(ctx, sch.OrgID, coord.UserID.String); err != nil {
		svc.logger.Warn(fmt.Sprintf("revoking membership of coordinator %s", coord.ID), err)
	}
	return nil
}

// SyncCoordinator matches the identity user `p` with a Coordinator of the School:
// by user id, else by email (linking the user id), else a new Coordinator is created.
func (svc *Service) SyncCoordinator(ctx context.Context, schoolID string, p member.Principal) (Coordinator, member.SyncResult, error) {
	var res member.SyncResult
	coord, err := svc.repo.GetCoordinator(ctx, schoolID, member.Lookup{UserID: p.UserID})
	if err == nil {
		return coord, res, nil
	} else if !core.IsNotFound(err) {
		return coord, res, err
	}

	now := time.Now().UTC()
	email := core.CleanString(p.Email, true /* lower */)
	if email != "" {
		coord, err = svc.repo.GetCoordinator(ctx, schoolID, member.Lookup{Email: email})
		if err == nil {
			coord.UserID = null.StringFrom(p.UserID)
			coord.UpdatedAt = now
			res.Linked = true
			coord, err = svc.repo.UpdateCoordinator(ctx, coord)
			return coord, res, err
		} else if !core.IsNotFound(err) {
			return coord, res, err
		}
	}

	coord, err = svc.repo.CreateCoordinator(ctx, Coordinator{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		UserID:    null.StringFrom(p.UserID),
		Name:      core.CleanString(p.Name),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	res.Created = err == nil
	return coord, res, err
}
