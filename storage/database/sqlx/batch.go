package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
)

const batchColumns = "id, school_id, level_id, name, description, start_date, end_date, is_active, created_at, updated_at"

var batchOrdering = map[string]string{
	"name":      "name",
	"startDate": "start_date",
	"endDate":   "end_date",
	"createdAt": "created_at",
}

type batchRepository struct {
	repository
}

var _ batch.Repository = (*batchRepository)(nil) // interface compliance check

func NewBatchRepository(exec core.DBExecutor) *batchRepository {
	return &batchRepository{repository{exec: exec}}
}

func (repo batchRepository) CheckNameUniqueness(ctx context.Context, schoolID, name string, excluded ...batch.Batch) error {
	ids := make([]string, 0, len(excluded))
	for _, b := range excluded {
		ids = append(ids, b.ID)
	}
	w := where{}
	w.add("school_id = ?", schoolID)
	w.add("name = ?", name)
	excludedIDs(&w, "id", ids)

	var exists bool
	q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM batches" + w.String() + ")")
	if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
		return errors.Wrap(err, "checking batch uniqueness")
	}
	if exists {
		return batch.ErrNameExists
	}
	return nil
}

func (repo batchRepository) LevelExists(ctx context.Context, levelID string) (bool, error) {
	if !isUUID(levelID) {
		return false, nil
	}
	var exists bool
	if err := repo.exec.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM levels WHERE id = $1)", levelID); err != nil {
		return false, errors.Wrap(err, "checking level")
	}
	return exists, nil
}

func (repo batchRepository) foreign(ctx context.Context, table, schoolID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !areUUIDs(ids) {
		return ids, nil
	}
	var found []string
	q := "SELECT id FROM " + table + " WHERE school_id = $1 AND id = ANY($2)"
	if err := repo.exec.SelectContext(ctx, &found, q, schoolID, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "checking "+table)
	}
	return missing(ids, found), nil
}

func (repo batchRepository) ForeignTrainers(ctx context.Context, schoolID string, ids []string) ([]string, error) {
	return repo.foreign(ctx, "trainers", schoolID, ids)
}

func (repo batchRepository) ForeignStudents(ctx context.Context, schoolID string, ids []string) ([]string, error) {
	return repo.foreign(ctx, "students", schoolID, ids)
}

func (repo batchRepository) CreateBatch(ctx context.Context, b batch.Batch, exec ...core.DBExecutor) (batch.Batch, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO batches ("+batchColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		b.ID, b.SchoolID, b.LevelID, b.Name, b.Description, b.StartDate, b.EndDate, b.IsActive, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "batches_school_id_name_key") {
			return batch.Batch{}, core.NewFieldError("name", batch.ErrNameExists)
		}
		return batch.Batch{}, errors.Wrap(err, "inserting batch")
	}
	return b, nil
}

func (repo batchRepository) QueryBatches(ctx context.Context, schoolID string, filter batch.QueryFilter, ordering []core.DBOrdering) ([]batch.Batch, error) {
	batches := make([]batch.Batch, 0)
	w := where{}
	w.add("school_id = ?", schoolID)
	w.search(filter.Search, "name", "description")
	if filter.LevelID != "" {
		if !isUUID(filter.LevelID) {
			return batches, nil
		}
		w.add("level_id = ?", filter.LevelID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.TrainerID != "" {
		w.add("id IN (SELECT batch_id FROM batch_trainers WHERE trainer_id = ?)", filter.TrainerID)
	}
	if filter.StudentID != "" {
		w.add("id IN (SELECT batch_id FROM batch_students WHERE student_id = ?)", filter.StudentID)
	}

	q := "SELECT " + batchColumns + " FROM batches" + w.String() + core.OrderBy(ordering, batchOrdering, "name ASC")
	if err := repo.exec.SelectContext(ctx, &batches, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	return batches, nil
}

func (repo batchRepository) GetBatch(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (batch.Batch, error) {
	if !isUUID(id) {
		return batch.Batch{}, batch.ErrNotFound
	}
	var b batch.Batch
	err := repo.getExec(exec).GetContext(ctx, &b,
		"SELECT "+batchColumns+" FROM batches WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return batch.Batch{}, trapNoRowsErr(err, batch.ErrNotFound, "getting batch")
	}
	return b, nil
}

func (repo batchRepository) UpdateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE batches
		SET level_id = $3, name = $4, description = $5, start_date = $6, end_date = $7, is_active = $8, updated_at = $9
		WHERE id = $1 AND school_id = $2`,
		b.ID, b.SchoolID, b.LevelID, b.Name, b.Description, b.StartDate, b.EndDate, b.IsActive, b.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "batches_school_id_name_key") {
			return batch.Batch{}, core.NewFieldError("name", batch.ErrNameExists)
		}
		return batch.Batch{}, errors.Wrap(err, "updating batch")
	}
	if err = expectRows(res, batch.ErrNotFound); err != nil {
		return batch.Batch{}, err
	}
	return b, nil
}

func (repo batchRepository) DeleteBatch(ctx context.Context, schoolID, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM batches WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	return expectRows(res, batch.ErrNotFound)
}

// setMembers replaces the rows of the `table` join table.
func (repo batchRepository) setMembers(ctx context.Context, table, column, batchID string, ids []string, exec []core.DBExecutor) error {
	ex := repo.getExec(exec)
	if _, err := ex.ExecContext(ctx, "DELETE FROM "+table+" WHERE batch_id = $1", batchID); err != nil {
		return errors.Wrap(err, "clearing "+table)
	}
	return repo.addMembers(ctx, table, column, batchID, ids, ex)
}

func (repo batchRepository) addMembers(ctx context.Context, table, column, batchID string, ids []string, ex core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		"INSERT INTO "+table+" (batch_id, "+column+") SELECT $1, UNNEST($2::uuid[]) ON CONFLICT DO NOTHING",
		batchID, pq.Array(ids))
	return errors.Wrap(err, "inserting "+table)
}

func (repo batchRepository) SetTrainers(ctx context.Context, batchID string, trainerIDs []string, exec ...core.DBExecutor) error {
	return repo.setMembers(ctx, "batch_trainers", "trainer_id", batchID, trainerIDs, exec)
}

func (repo batchRepository) SetStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error {
	return repo.setMembers(ctx, "batch_students", "student_id", batchID, studentIDs, exec)
}

func (repo batchRepository) AddStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error {
	return repo.addMembers(ctx, "batch_students", "student_id", batchID, studentIDs, repo.getExec(exec))
}

func (repo batchRepository) MemberIDs(ctx context.Context, batchID string) (trainerIDs, studentIDs []string, err error) {
	trainerIDs, studentIDs = make([]string, 0), make([]string, 0)
	if err = repo.exec.SelectContext(ctx, &trainerIDs, `
		SELECT bt.trainer_id FROM batch_trainers bt JOIN trainers t ON t.id = bt.trainer_id
		WHERE bt.batch_id = $1 ORDER BY t.name`, batchID); err != nil {
		return nil, nil, errors.Wrap(err, "querying batch trainers")
	}
	if err = repo.exec.SelectContext(ctx, &studentIDs, `
		SELECT bs.student_id FROM batch_students bs JOIN students s ON s.id = bs.student_id
		WHERE bs.batch_id = $1 ORDER BY s.name`, batchID); err != nil {
		return nil, nil, errors.Wrap(err, "querying batch students")
	}
	return trainerIDs, studentIDs, nil
}

func (repo batchRepository) has(ctx context.Context, table, column, batchID, id string) (bool, error) {
	if !isUUID(batchID) || !isUUID(id) {
		return false, nil
	}
	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM " + table + " WHERE batch_id = $1 AND " + column + " = $2)"
	if err := repo.exec.GetContext(ctx, &exists, q, batchID, id); err != nil {
		return false, errors.Wrap(err, "checking "+table)
	}
	return exists, nil
}

func (repo batchRepository) HasTrainer(ctx context.Context, batchID, trainerID string) (bool, error) {
	return repo.has(ctx, "batch_trainers", "trainer_id", batchID, trainerID)
}

func (repo batchRepository) HasStudent(ctx context.Context, batchID, studentID string) (bool, error) {
	return repo.has(ctx, "batch_students", "student_id", batchID, studentID)
}
