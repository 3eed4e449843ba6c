package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
)

type batchRepository struct {
	db *DB
}

var _ batch.Repository = (*batchRepository)(nil) // interface compliance check

func NewBatchRepository(db *DB) *batchRepository {
	return &batchRepository{db: db}
}

func (repo *batchRepository) checkName(schoolID, name string, excluded ...string) error {
	for _, b := range repo.db.batches {
		if b.SchoolID == schoolID && b.Name == name && !isExcluded(b.ID, excluded) {
			return batch.ErrNameExists
		}
	}
	return nil
}

func (repo *batchRepository) CheckNameUniqueness(_ context.Context, schoolID, name string, excluded ...batch.Batch) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := make([]string, 0, len(excluded))
	for _, b := range excluded {
		ids = append(ids, b.ID)
	}
	return repo.checkName(schoolID, name, ids...)
}

func (repo *batchRepository) LevelExists(_ context.Context, levelID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	_, ok := repo.db.levels[levelID]
	return ok, nil
}

func (repo *batchRepository) ForeignTrainers(_ context.Context, schoolID string, ids []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return missingFrom(ids, func(id string) bool {
		t, ok := repo.db.trainers[id]
		return ok && t.SchoolID == schoolID
	}), nil
}

func (repo *batchRepository) ForeignStudents(_ context.Context, schoolID string, ids []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return missingFrom(ids, func(id string) bool {
		s, ok := repo.db.students[id]
		return ok && s.SchoolID == schoolID
	}), nil
}

func (repo *batchRepository) CreateBatch(_ context.Context, b batch.Batch, _ ...core.DBExecutor) (batch.Batch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.checkName(b.SchoolID, b.Name); err != nil {
		return batch.Batch{}, core.NewFieldError("name", err)
	}
	b.TrainerIDs, b.StudentIDs = nil, nil
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *batchRepository) QueryBatches(_ context.Context, schoolID string, filter batch.QueryFilter, _ []core.DBOrdering) ([]batch.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	batches := make([]batch.Batch, 0)
	for _, b := range repo.db.batches {
		if b.SchoolID != schoolID || !matches(filter.Search, b.Name, b.Description) {
			continue
		}
		if filter.LevelID != "" && b.LevelID.String != filter.LevelID {
			continue
		}
		if filter.IsActive != nil && b.IsActive != *filter.IsActive {
			continue
		}
		if filter.TrainerID != "" && !repo.db.batchTrainers[b.ID][filter.TrainerID] {
			continue
		}
		if filter.StudentID != "" && !repo.db.batchStudents[b.ID][filter.StudentID] {
			continue
		}
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Name < batches[j].Name })
	return batches, nil
}

func (repo *batchRepository) GetBatch(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (batch.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if b, ok := repo.db.batches[id]; ok && b.SchoolID == schoolID {
		return *b, nil
	}
	return batch.Batch{}, batch.ErrNotFound
}

func (repo *batchRepository) UpdateBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if orig, ok := repo.db.batches[b.ID]; !ok || orig.SchoolID != b.SchoolID {
		return batch.Batch{}, batch.ErrNotFound
	}
	if err := repo.checkName(b.SchoolID, b.Name, b.ID); err != nil {
		return batch.Batch{}, core.NewFieldError("name", err)
	}
	b.TrainerIDs, b.StudentIDs = nil, nil
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *batchRepository) DeleteBatch(_ context.Context, schoolID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if b, ok := repo.db.batches[id]; !ok || b.SchoolID != schoolID {
		return batch.ErrNotFound
	}
	delete(repo.db.batches, id)
	delete(repo.db.batchTrainers, id)
	delete(repo.db.batchStudents, id)
	for aid, a := range repo.db.assignments {
		if a.BatchID == id {
			delete(repo.db.assignments, aid)
		}
	}
	return nil
}

func (repo *batchRepository) SetTrainers(_ context.Context, batchID string, trainerIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.batchTrainers[batchID] = newSet(trainerIDs)
	return nil
}

func (repo *batchRepository) SetStudents(_ context.Context, batchID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.batchStudents[batchID] = newSet(studentIDs)
	return nil
}

func (repo *batchRepository) AddStudents(_ context.Context, batchID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	members, ok := repo.db.batchStudents[batchID]
	if !ok {
		members = make(set)
		repo.db.batchStudents[batchID] = members
	}
	for _, id := range studentIDs {
		members[id] = true
	}
	return nil
}

func (repo *batchRepository) MemberIDs(_ context.Context, batchID string) (trainerIDs, studentIDs []string, err error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.batchTrainers[batchID].keys(), repo.db.batchStudents[batchID].keys(), nil
}

func (repo *batchRepository) HasTrainer(_ context.Context, batchID, trainerID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.batchTrainers[batchID][trainerID], nil
}

func (repo *batchRepository) HasStudent(_ context.Context, batchID, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.batchStudents[batchID][studentID], nil
}
