package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
)

const (
	schoolColumns      = "id, org_id, name, slug, address, city, contact_email, contact_phone, logo_url, is_active, created_at, updated_at"
	coordinatorColumns = "id, school_id, user_id, name, email, phone, created_at, updated_at"
)

var schoolOrdering = map[string]string{
	"name":      "name",
	"slug":      "slug",
	"city":      "city",
	"createdAt": "created_at",
}

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{repository{exec: exec}}
}

func (repo schoolRepository) CheckSchoolUniqueness(ctx context.Context, slug, orgID string, excluded ...school.School) error {
	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}

	check := func(column, value string, errExists error) error {
		if value == "" {
			return nil
		}
		w := where{}
		w.add(column+" = ?", value)
		excludedIDs(&w, "id", ids)
		var exists bool
		q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM schools" + w.String() + ")")
		if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
			return errors.Wrap(err, "checking school uniqueness")
		}
		if exists {
			return errExists
		}
		return nil
	}

	if err := check("slug", slug, school.ErrSlugExists); err != nil {
		return err
	}
	return check("org_id", orgID, school.ErrOrgExists)
}

func (repo schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO schools ("+schoolColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		s.ID, s.OrgID, s.Name, s.Slug, s.Address, s.City, s.ContactEmail, s.ContactPhone, s.LogoURL, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		switch {
		case isViolation(err, pqUniqueViolation, "schools_slug_key"):
			return school.School{}, core.NewFieldError("slug", school.ErrSlugExists)
		case isViolation(err, pqUniqueViolation, "schools_org_id_key"):
			return school.School{}, core.NewFieldError("orgId", school.ErrOrgExists)
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return s, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, ordering []core.DBOrdering) ([]school.School, error) {
	w := where{}
	w.search(filter.Search, "name", "slug", "city")
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	q := "SELECT " + schoolColumns + " FROM schools" + w.String() + core.OrderBy(ordering, schoolOrdering, "name ASC")
	schools := make([]school.School, 0)
	if err := repo.exec.SelectContext(ctx, &schools, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	return schools, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, filter school.GetFilter) (school.School, error) {
	w := where{}
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return school.School{}, school.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.OrgID != "":
		w.add("org_id = ?", filter.OrgID)
	case filter.Slug != "":
		w.add("slug = ?", filter.Slug)
	default:
		return school.School{}, school.ErrNotFound
	}

	var s school.School
	q := repo.exec.Rebind("SELECT " + schoolColumns + " FROM schools" + w.String())
	if err := repo.exec.GetContext(ctx, &s, q, w.args...); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "getting school")
	}
	return s, nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE schools
		SET name = $2, slug = $3, address = $4, city = $5, contact_email = $6, contact_phone = $7,
			logo_url = $8, is_active = $9, updated_at = $10
		WHERE id = $1`,
		s.ID, s.Name, s.Slug, s.Address, s.City, s.ContactEmail, s.ContactPhone, s.LogoURL, s.IsActive, s.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "schools_slug_key") {
			return school.School{}, core.NewFieldError("slug", school.ErrSlugExists)
		}
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if err = expectRows(res, school.ErrNotFound); err != nil {
		return school.School{}, err
	}
	return s, nil
}

func (repo schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM schools WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return expectRows(res, school.ErrNotFound)
}

// Coordinators

func (repo schoolRepository) CheckCoordinatorUniqueness(ctx context.Context, schoolID, email string) error {
	var exists bool
	err := repo.exec.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM coordinators WHERE school_id = $1 AND email = $2)", schoolID, email)
	if err != nil {
		return errors.Wrap(err, "checking coordinator uniqueness")
	}
	if exists {
		return school.ErrCoordinatorExists
	}
	return nil
}

func (repo schoolRepository) CreateCoordinator(ctx context.Context, c school.Coordinator) (school.Coordinator, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO coordinators ("+coordinatorColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		c.ID, c.SchoolID, c.UserID, c.Name, c.Email, c.Phone, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation) {
			return school.Coordinator{}, core.NewFieldError("email", school.ErrCoordinatorExists)
		}
		return school.Coordinator{}, errors.Wrap(err, "inserting coordinator")
	}
	return c, nil
}

func (repo schoolRepository) QueryCoordinators(ctx context.Context, schoolID string) ([]school.Coordinator, error) {
	coords := make([]school.Coordinator, 0)
	err := repo.exec.SelectContext(ctx, &coords,
		"SELECT "+coordinatorColumns+" FROM coordinators WHERE school_id = $1 ORDER BY name", schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying coordinators")
	}
	return coords, nil
}

func (repo schoolRepository) GetCoordinator(ctx context.Context, schoolID string, lookup member.Lookup) (school.Coordinator, error) {
	w, ok := memberLookup(schoolID, lookup)
	if !ok {
		return school.Coordinator{}, school.ErrCoordinatorNotFound
	}
	var c school.Coordinator
	q := repo.exec.Rebind("SELECT " + coordinatorColumns + " FROM coordinators" + w.String() + " LIMIT 1")
	if err := repo.exec.GetContext(ctx, &c, q, w.args...); err != nil {
		return school.Coordinator{}, trapNoRowsErr(err, school.ErrCoordinatorNotFound, "getting coordinator")
	}
	return c, nil
}

func (repo schoolRepository) UpdateCoordinator(ctx context.Context, c school.Coordinator) (school.Coordinator, error) {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE coordinators SET user_id = $3, name = $4, email = $5, phone = $6, updated_at = $7 WHERE id = $1 AND school_id = $2",
		c.ID, c.SchoolID, c.UserID, c.Name, c.Email, c.Phone, c.UpdatedAt)
	if err != nil {
		return school.Coordinator{}, errors.Wrap(err, "updating coordinator")
	}
	if err = expectRows(res, school.ErrCoordinatorNotFound); err != nil {
		return school.Coordinator{}, err
	}
	return c, nil
}

func (repo schoolRepository) DeleteCoordinator(ctx context.Context, schoolID, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM coordinators WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting coordinator")
	}
	return expectRows(res, school.ErrCoordinatorNotFound)
}
