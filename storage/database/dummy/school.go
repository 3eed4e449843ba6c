package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CheckSchoolUniqueness(_ context.Context, slug, orgID string, excluded ...school.School) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}
	for _, s := range repo.db.schools {
		if isExcluded(s.ID, ids) {
			continue
		}
		if slug != "" && s.Slug == slug {
			return school.ErrSlugExists
		}
		if orgID != "" && s.OrgID == orgID {
			return school.ErrOrgExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	if err := repo.CheckSchoolUniqueness(ctx, s.Slug, s.OrgID); err != nil {
		if err == school.ErrSlugExists {
			return school.School{}, core.NewFieldError("slug", err)
		}
		return school.School{}, core.NewFieldError("orgId", err)
	}
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) QuerySchools(_ context.Context, filter school.QueryFilter, _ []core.DBOrdering) ([]school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	schools := make([]school.School, 0)
	for _, s := range repo.db.schools {
		if !matches(filter.Search, s.Name, s.Slug, s.City) {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		schools = append(schools, *s)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, filter school.GetFilter) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.schools {
		switch {
		case filter.ID != "":
			if s.ID == filter.ID {
				return *s, nil
			}
		case filter.OrgID != "":
			if s.OrgID == filter.OrgID {
				return *s, nil
			}
		case filter.Slug != "":
			if s.Slug == filter.Slug {
				return *s, nil
			}
		}
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	if err := repo.CheckSchoolUniqueness(ctx, s.Slug, "", s); err != nil {
		return school.School{}, core.NewFieldError("slug", err)
	}
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.schools[s.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) DeleteSchool(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.schools[id]; !ok {
		return school.ErrNotFound
	}
	delete(repo.db.schools, id)
	for cid, c := range repo.db.coordinators {
		if c.SchoolID == id {
			delete(repo.db.coordinators, cid)
		}
	}
	return nil
}

func (repo *schoolRepository) CheckCoordinatorUniqueness(_ context.Context, schoolID, email string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, c := range repo.db.coordinators {
		if c.SchoolID == schoolID && c.Email == email {
			return school.ErrCoordinatorExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateCoordinator(ctx context.Context, c school.Coordinator) (school.Coordinator, error) {
	if err := repo.CheckCoordinatorUniqueness(ctx, c.SchoolID, c.Email); err != nil {
		return school.Coordinator{}, core.NewFieldError("email", err)
	}
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.coordinators[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) QueryCoordinators(_ context.Context, schoolID string) ([]school.Coordinator, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	coords := make([]school.Coordinator, 0)
	for _, c := range repo.db.coordinators {
		if c.SchoolID == schoolID {
			coords = append(coords, *c)
		}
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Name < coords[j].Name })
	return coords, nil
}

func (repo *schoolRepository) GetCoordinator(_ context.Context, schoolID string, lookup member.Lookup) (school.Coordinator, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, c := range repo.db.coordinators {
		if c.SchoolID == schoolID && lookupMatches(lookup, c.ID, c.UserID.String, c.Email) {
			return *c, nil
		}
	}
	return school.Coordinator{}, school.ErrCoordinatorNotFound
}

func (repo *schoolRepository) UpdateCoordinator(_ context.Context, c school.Coordinator) (school.Coordinator, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if orig, ok := repo.db.coordinators[c.ID]; !ok || orig.SchoolID != c.SchoolID {
		return school.Coordinator{}, school.ErrCoordinatorNotFound
	}
	repo.db.coordinators[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) DeleteCoordinator(_ context.Context, schoolID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if c, ok := repo.db.coordinators[id]; !ok || c.SchoolID != schoolID {
		return school.ErrCoordinatorNotFound
	}
	delete(repo.db.coordinators, id)
	return nil
}
