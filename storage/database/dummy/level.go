package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/level"
)

type levelRepository struct {
	db *DB
}

var _ level.Repository = (*levelRepository)(nil) // interface compliance check

func NewLevelRepository(db *DB) *levelRepository {
	return &levelRepository{db: db}
}

func (repo *levelRepository) checkName(name string, excluded ...string) error {
	for _, l := range repo.db.levels {
		if strings.EqualFold(l.Name, name) && !isExcluded(l.ID, excluded) {
			return level.ErrNameExists
		}
	}
	return nil
}

func (repo *levelRepository) CheckNameUniqueness(_ context.Context, name string, excluded ...level.Level) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := make([]string, 0, len(excluded))
	for _, l := range excluded {
		ids = append(ids, l.ID)
	}
	return repo.checkName(name, ids...)
}

func (repo *levelRepository) CreateLevel(_ context.Context, l level.Level) (level.Level, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.checkName(l.Name); err != nil {
		return level.Level{}, core.NewFieldError("name", err)
	}
	l.CourseIDs = nil
	repo.db.levels[l.ID] = &l
	return l, nil
}

func (repo *levelRepository) QueryLevels(_ context.Context) ([]level.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	levels := make([]level.Level, 0, len(repo.db.levels))
	for _, l := range repo.db.levels {
		levels = append(levels, *l)
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Position != levels[j].Position {
			return levels[i].Position < levels[j].Position
		}
		return levels[i].Name < levels[j].Name
	})
	return levels, nil
}

func (repo *levelRepository) GetLevel(_ context.Context, id string) (level.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if l, ok := repo.db.levels[id]; ok {
		return *l, nil
	}
	return level.Level{}, level.ErrNotFound
}

func (repo *levelRepository) UpdateLevel(_ context.Context, l level.Level) (level.Level, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.levels[l.ID]; !ok {
		return level.Level{}, level.ErrNotFound
	}
	if err := repo.checkName(l.Name, l.ID); err != nil {
		return level.Level{}, core.NewFieldError("name", err)
	}
	l.CourseIDs = nil
	repo.db.levels[l.ID] = &l
	return l, nil
}

func (repo *levelRepository) DeleteLevel(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.levels[id]; !ok {
		return level.ErrNotFound
	}
	delete(repo.db.levels, id)
	delete(repo.db.levelCourses, id)
	for _, levels := range repo.db.trainerLevels {
		delete(levels, id)
	}
	for _, b := range repo.db.batches {
		if b.LevelID.String == id {
			b.LevelID.Valid, b.LevelID.String = false, ""
		}
	}
	return nil
}

func (repo *levelRepository) MissingCourses(_ context.Context, courseIDs []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return missingFrom(courseIDs, func(id string) bool { _, ok := repo.db.courses[id]; return ok }), nil
}

func (repo *levelRepository) SetCourses(_ context.Context, levelID string, courseIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.levelCourses[levelID] = append([]string{}, courseIDs...)
	return nil
}

func (repo *levelRepository) CourseIDs(_ context.Context, levelID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]string{}, repo.db.levelCourses[levelID]...), nil
}
