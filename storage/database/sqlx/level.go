package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/level"
)

const levelColumns = "id, name, description, position, created_at, updated_at"

type levelRepository struct {
	repository
}

var _ level.Repository = (*levelRepository)(nil) // interface compliance check

func NewLevelRepository(exec core.DBExecutor) *levelRepository {
	return &levelRepository{repository{exec: exec}}
}

func (repo levelRepository) CheckNameUniqueness(ctx context.Context, name string, excluded ...level.Level) error {
	ids := make([]string, 0, len(excluded))
	for _, l := range excluded {
		ids = append(ids, l.ID)
	}
	w := where{}
	w.add("LOWER(name) = LOWER(?)", name)
	excludedIDs(&w, "id", ids)

	var exists bool
	q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM levels" + w.String() + ")")
	if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
		return errors.Wrap(err, "checking level uniqueness")
	}
	if exists {
		return level.ErrNameExists
	}
	return nil
}

func (repo levelRepository) CreateLevel(ctx context.Context, l level.Level) (level.Level, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO levels ("+levelColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		l.ID, l.Name, l.Description, l.Position, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "levels_name_key") {
			return level.Level{}, core.NewFieldError("name", level.ErrNameExists)
		}
		return level.Level{}, errors.Wrap(err, "inserting level")
	}
	return l, nil
}

func (repo levelRepository) QueryLevels(ctx context.Context) ([]level.Level, error) {
	levels := make([]level.Level, 0)
	if err := repo.exec.SelectContext(ctx, &levels, "SELECT "+levelColumns+" FROM levels ORDER BY position, name"); err != nil {
		return nil, errors.Wrap(err, "querying levels")
	}
	return levels, nil
}

func (repo levelRepository) GetLevel(ctx context.Context, id string) (level.Level, error) {
	if !isUUID(id) {
		return level.Level{}, level.ErrNotFound
	}
	var l level.Level
	if err := repo.exec.GetContext(ctx, &l, "SELECT "+levelColumns+" FROM levels WHERE id = $1", id); err != nil {
		return level.Level{}, trapNoRowsErr(err, level.ErrNotFound, "getting level")
	}
	return l, nil
}

func (repo levelRepository) UpdateLevel(ctx context.Context, l level.Level) (level.Level, error) {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE levels SET name = $2, description = $3, position = $4, updated_at = $5 WHERE id = $1",
		l.ID, l.Name, l.Description, l.Position, l.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "levels_name_key") {
			return level.Level{}, core.NewFieldError("name", level.ErrNameExists)
		}
		return level.Level{}, errors.Wrap(err, "updating level")
	}
	if err = expectRows(res, level.ErrNotFound); err != nil {
		return level.Level{}, err
	}
	return l, nil
}

func (repo levelRepository) DeleteLevel(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM levels WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting level")
	}
	return expectRows(res, level.ErrNotFound)
}

func (repo levelRepository) MissingCourses(ctx context.Context, courseIDs []string) ([]string, error) {
	if !areUUIDs(courseIDs) {
		return courseIDs, nil
	}
	var found []string
	if err := repo.exec.SelectContext(ctx, &found, "SELECT id FROM courses WHERE id = ANY($1)", pq.Array(courseIDs)); err != nil {
		return nil, errors.Wrap(err, "checking courses")
	}
	return missing(courseIDs, found), nil
}

func (repo levelRepository) SetCourses(ctx context.Context, levelID string, courseIDs []string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	if _, err := ex.ExecContext(ctx, "DELETE FROM level_courses WHERE level_id = $1", levelID); err != nil {
		return errors.Wrap(err, "clearing level courses")
	}
	if len(courseIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO level_courses (level_id, course_id, position)
		SELECT $1, c.id, c.position FROM UNNEST($2::uuid[]) WITH ORDINALITY AS c(id, position)`,
		levelID, pq.Array(courseIDs))
	return errors.Wrap(err, "setting level courses")
}

func (repo levelRepository) CourseIDs(ctx context.Context, levelID string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.exec.SelectContext(ctx, &ids,
		"SELECT course_id FROM level_courses WHERE level_id = $1 ORDER BY position", levelID)
	if err != nil {
		return nil, errors.Wrap(err, "querying level courses")
	}
	return ids, nil
}
