package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/trainer"
)

type trainerRepository struct {
	db *DB
}

var _ trainer.Repository = (*trainerRepository)(nil) // interface compliance check

func NewTrainerRepository(db *DB) *trainerRepository {
	return &trainerRepository{db: db}
}

func (repo *trainerRepository) checkEmail(schoolID, email string, excluded ...string) error {
	for _, t := range repo.db.trainers {
		if t.SchoolID == schoolID && t.Email == email && !isExcluded(t.ID, excluded) {
			return trainer.ErrEmailExists
		}
	}
	return nil
}

func (repo *trainerRepository) CheckEmailUniqueness(_ context.Context, schoolID, email string, excluded ...trainer.Trainer) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}
	return repo.checkEmail(schoolID, email, ids...)
}

func (repo *trainerRepository) CreateTrainer(_ context.Context, t trainer.Trainer, _ ...core.DBExecutor) (trainer.Trainer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.checkEmail(t.SchoolID, t.Email); err != nil {
		return trainer.Trainer{}, core.NewFieldError("email", err)
	}
	t.LevelIDs = nil
	repo.db.trainers[t.ID] = &t
	return t, nil
}

func (repo *trainerRepository) QueryTrainers(_ context.Context, schoolID string, filter trainer.QueryFilter, _ []core.DBOrdering) ([]trainer.Trainer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	trainers := make([]trainer.Trainer, 0)
	for _, t := range repo.db.trainers {
		if t.SchoolID != schoolID || !matches(filter.Search, t.Name, t.Email, t.Specialization) {
			continue
		}
		if filter.IsVerified != nil && t.IsVerified != *filter.IsVerified {
			continue
		}
		if filter.LevelID != "" && !repo.db.trainerLevels[t.ID][filter.LevelID] {
			continue
		}
		trainers = append(trainers, *t)
	}
	sort.Slice(trainers, func(i, j int) bool { return trainers[i].Name < trainers[j].Name })
	return trainers, nil
}

func (repo *trainerRepository) GetTrainer(_ context.Context, schoolID string, lookup member.Lookup, _ ...core.DBExecutor) (trainer.Trainer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, t := range repo.db.trainers {
		if t.SchoolID == schoolID && lookupMatches(lookup, t.ID, t.UserID.String, t.Email) {
			return *t, nil
		}
	}
	return trainer.Trainer{}, trainer.ErrNotFound
}

func (repo *trainerRepository) GetVerifiedTrainer(_ context.Context, schoolID string, _ ...core.DBExecutor) (trainer.Trainer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, t := range repo.db.trainers {
		if t.SchoolID == schoolID && t.IsVerified {
			return *t, nil
		}
	}
	return trainer.Trainer{}, trainer.ErrNotFound
}

func (repo *trainerRepository) UpdateTrainer(_ context.Context, t trainer.Trainer, _ ...core.DBExecutor) (trainer.Trainer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	orig, ok := repo.db.trainers[t.ID]
	if !ok || orig.SchoolID != t.SchoolID {
		return trainer.Trainer{}, trainer.ErrNotFound
	}
	if err := repo.checkEmail(t.SchoolID, t.Email, t.ID); err != nil {
		return trainer.Trainer{}, core.NewFieldError("email", err)
	}
	t.IsVerified = orig.IsVerified
	t.LevelIDs = nil
	repo.db.trainers[t.ID] = &t
	return t, nil
}

func (repo *trainerRepository) SetVerified(_ context.Context, schoolID, id string, verified bool, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	t, ok := repo.db.trainers[id]
	if !ok || t.SchoolID != schoolID {
		return trainer.ErrNotFound
	}
	if verified {
		for _, other := range repo.db.trainers {
			if other.SchoolID == schoolID && other.IsVerified && other.ID != id {
				return trainer.ErrVerifiedExists
			}
		}
	}
	t.IsVerified = verified
	return nil
}

func (repo *trainerRepository) DeleteTrainer(_ context.Context, schoolID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if t, ok := repo.db.trainers[id]; !ok || t.SchoolID != schoolID {
		return trainer.ErrNotFound
	}
	delete(repo.db.trainers, id)
	delete(repo.db.trainerLevels, id)
	for _, members := range repo.db.batchTrainers {
		delete(members, id)
	}
	return nil
}

func (repo *trainerRepository) MissingLevels(_ context.Context, levelIDs []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return missingFrom(levelIDs, func(id string) bool { _, ok := repo.db.levels[id]; return ok }), nil
}

func (repo *trainerRepository) SetLevels(_ context.Context, trainerID string, levelIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.trainerLevels[trainerID] = newSet(levelIDs)
	return nil
}

func (repo *trainerRepository) LevelIDs(_ context.Context, trainerIDs ...string) (map[string][]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	levels := make(map[string][]string, len(trainerIDs))
	for _, id := range trainerIDs {
		if ids := repo.db.trainerLevels[id].keys(); len(ids) > 0 {
			levels[id] = ids
		}
	}
	return levels, nil
}
