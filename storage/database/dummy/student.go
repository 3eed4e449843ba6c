package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) checkEmail(schoolID, email string, excluded ...string) error {
	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && s.Email == email && !isExcluded(s.ID, excluded) {
			return student.ErrEmailExists
		}
	}
	return nil
}

func (repo *studentRepository) CheckEmailUniqueness(_ context.Context, schoolID, email string, excluded ...student.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}
	return repo.checkEmail(schoolID, email, ids...)
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.checkEmail(s.SchoolID, s.Email); err != nil {
		return student.Student{}, core.NewFieldError("email", err)
	}
	s.BatchIDs = nil
	repo.db.students[s.ID] = &s
	return s, nil
}

// trainerStudents returns the students of the batches of the trainer.
func (db *DB) trainerStudents(trainerID string) set {
	ids := make(set)
	for batchID, trainers := range db.batchTrainers {
		if trainers[trainerID] {
			for id := range db.batchStudents[batchID] {
				ids[id] = true
			}
		}
	}
	return ids
}

func (repo *studentRepository) QueryStudents(_ context.Context, schoolID string, filter student.QueryFilter, _ []core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var scope, ids set
	if filter.TrainerID != "" {
		scope = repo.db.trainerStudents(filter.TrainerID)
	}
	if filter.IDs != nil {
		ids = newSet(filter.IDs)
	}
	students := make([]student.Student, 0)
	for _, s := range repo.db.students {
		if s.SchoolID != schoolID || !matches(filter.Search, s.Name, s.Email, s.RollNumber) {
			continue
		}
		if filter.SyncStatus != "" && s.SyncStatus != filter.SyncStatus {
			continue
		}
		if filter.BatchID != "" && !repo.db.batchStudents[filter.BatchID][s.ID] {
			continue
		}
		if (scope != nil && !scope[s.ID]) || (ids != nil && !ids[s.ID]) {
			continue
		}
		students = append(students, *s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, schoolID string, lookup member.Lookup) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && lookupMatches(lookup, s.ID, s.UserID.String, s.Email) {
			return *s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if orig, ok := repo.db.students[s.ID]; !ok || orig.SchoolID != s.SchoolID {
		return student.Student{}, student.ErrNotFound
	}
	if err := repo.checkEmail(s.SchoolID, s.Email, s.ID); err != nil {
		return student.Student{}, core.NewFieldError("email", err)
	}
	s.BatchIDs = nil
	repo.db.students[s.ID] = &s
	return s, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, schoolID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if s, ok := repo.db.students[id]; !ok || s.SchoolID != schoolID {
		return student.ErrNotFound
	}
	delete(repo.db.students, id)
	for _, members := range repo.db.batchStudents {
		delete(members, id)
	}
	return nil
}

func (repo *studentRepository) QueryPendingSyncs(_ context.Context, limit int) ([]student.PendingSync, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pending := make([]student.PendingSync, 0)
	for _, s := range repo.db.students {
		if s.SyncStatus != student.SyncPending && s.SyncStatus != student.SyncFailed {
			continue
		}
		sch, ok := repo.db.schools[s.SchoolID]
		if !ok || !sch.IsActive {
			continue
		}
		pending = append(pending, student.PendingSync{Student: *s, OrgID: sch.OrgID})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].UpdatedAt.Before(pending[j].UpdatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (repo *studentRepository) BatchIDs(_ context.Context, studentIDs ...string) (map[string][]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	batches := make(map[string][]string, len(studentIDs))
	for _, id := range studentIDs {
		for batchID, members := range repo.db.batchStudents {
			if members[id] {
				batches[id] = append(batches[id], batchID)
			}
		}
		sort.Strings(batches[id])
	}
	return batches, nil
}
