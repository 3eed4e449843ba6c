package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/trainer"
)

const trainerColumns = "id, school_id, user_id, name, email, phone, specialization, bio, photo_url, is_verified, created_at, updated_at"

var trainerOrdering = map[string]string{
	"name":       "name",
	"email":      "email",
	"isVerified": "is_verified",
	"createdAt":  "created_at",
}

type trainerRepository struct {
	repository
}

var _ trainer.Repository = (*trainerRepository)(nil) // interface compliance check

func NewTrainerRepository(exec core.DBExecutor) *trainerRepository {
	return &trainerRepository{repository{exec: exec}}
}

func (repo trainerRepository) CheckEmailUniqueness(ctx context.Context, schoolID, email string, excluded ...trainer.Trainer) error {
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}
	w := where{}
	w.add("school_id = ?", schoolID)
	w.add("email = ?", email)
	excludedIDs(&w, "id", ids)

	var exists bool
	q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM trainers" + w.String() + ")")
	if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
		return errors.Wrap(err, "checking trainer uniqueness")
	}
	if exists {
		return trainer.ErrEmailExists
	}
	return nil
}

func (repo trainerRepository) CreateTrainer(ctx context.Context, t trainer.Trainer, exec ...core.DBExecutor) (trainer.Trainer, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO trainers ("+trainerColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		t.ID, t.SchoolID, t.UserID, t.Name, t.Email, t.Phone, t.Specialization, t.Bio, t.PhotoURL, t.IsVerified, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "trainers_school_id_email_key") {
			return trainer.Trainer{}, core.NewFieldError("email", trainer.ErrEmailExists)
		}
		return trainer.Trainer{}, errors.Wrap(err, "inserting trainer")
	}
	return t, nil
}

func (repo trainerRepository) QueryTrainers(ctx context.Context, schoolID string, filter trainer.QueryFilter, ordering []core.DBOrdering) ([]trainer.Trainer, error) {
	w := where{}
	w.add("school_id = ?", schoolID)
	w.search(filter.Search, "name", "email", "specialization")
	if filter.IsVerified != nil {
		w.add("is_verified = ?", *filter.IsVerified)
	}
	if filter.LevelID != "" {
		if !isUUID(filter.LevelID) {
			return []trainer.Trainer{}, nil
		}
		w.add("id IN (SELECT trainer_id FROM trainer_levels WHERE level_id = ?)", filter.LevelID)
	}

	q := "SELECT " + trainerColumns + " FROM trainers" + w.String() + core.OrderBy(ordering, trainerOrdering, "name ASC")
	trainers := make([]trainer.Trainer, 0)
	if err := repo.exec.SelectContext(ctx, &trainers, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying trainers")
	}
	return trainers, nil
}

func (repo trainerRepository) GetTrainer(ctx context.Context, schoolID string, lookup member.Lookup, exec ...core.DBExecutor) (trainer.Trainer, error) {
	w, ok := memberLookup(schoolID, lookup)
	if !ok {
		return trainer.Trainer{}, trainer.ErrNotFound
	}
	ex := repo.getExec(exec)
	var t trainer.Trainer
	q := ex.Rebind("SELECT " + trainerColumns + " FROM trainers" + w.String() + " LIMIT 1")
	if err := ex.GetContext(ctx, &t, q, w.args...); err != nil {
		return trainer.Trainer{}, trapTrainerNoRows(err)
	}
	return t, nil
}

func trapTrainerNoRows(err error) error {
	return trapNoRowsErr(err, trainer.ErrNotFound, "getting trainer")
}

func (repo trainerRepository) GetVerifiedTrainer(ctx context.Context, schoolID string, exec ...core.DBExecutor) (trainer.Trainer, error) {
	var t trainer.Trainer
	err := repo.getExec(exec).GetContext(ctx, &t,
		"SELECT "+trainerColumns+" FROM trainers WHERE school_id = $1 AND is_verified LIMIT 1 FOR UPDATE", schoolID)
	if err != nil {
		return trainer.Trainer{}, trapTrainerNoRows(err)
	}
	return t, nil
}

func (repo trainerRepository) UpdateTrainer(ctx context.Context, t trainer.Trainer, exec ...core.DBExecutor) (trainer.Trainer, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE trainers
		SET user_id = $3, name = $4, email = $5, phone = $6, specialization = $7, bio = $8, photo_url = $9, updated_at = $10
		WHERE id = $1 AND school_id = $2`,
		t.ID, t.SchoolID, t.UserID, t.Name, t.Email, t.Phone, t.Specialization, t.Bio, t.PhotoURL, t.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "trainers_school_id_email_key") {
			return trainer.Trainer{}, core.NewFieldError("email", trainer.ErrEmailExists)
		}
		return trainer.Trainer{}, errors.Wrap(err, "updating trainer")
	}
	if err = expectRows(res, trainer.ErrNotFound); err != nil {
		return trainer.Trainer{}, err
	}
	return t, nil
}

func (repo trainerRepository) SetVerified(ctx context.Context, schoolID, id string, verified bool, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE trainers SET is_verified = $3, updated_at = NOW() WHERE id = $1 AND school_id = $2", id, schoolID, verified)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "trainers_one_verified_idx") {
			return trainer.ErrVerifiedExists
		}
		return errors.Wrap(err, "verifying trainer")
	}
	return expectRows(res, trainer.ErrNotFound)
}

func (repo trainerRepository) DeleteTrainer(ctx context.Context, schoolID, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM trainers WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting trainer")
	}
	return expectRows(res, trainer.ErrNotFound)
}

func (repo trainerRepository) MissingLevels(ctx context.Context, levelIDs []string) ([]string, error) {
	if !areUUIDs(levelIDs) {
		return levelIDs, nil
	}
	var found []string
	if err := repo.exec.SelectContext(ctx, &found, "SELECT id FROM levels WHERE id = ANY($1)", pq.Array(levelIDs)); err != nil {
		return nil, errors.Wrap(err, "checking levels")
	}
	return missing(levelIDs, found), nil
}

func (repo trainerRepository) SetLevels(ctx context.Context, trainerID string, levelIDs []string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	if _, err := ex.ExecContext(ctx, "DELETE FROM trainer_levels WHERE trainer_id = $1", trainerID); err != nil {
		return errors.Wrap(err, "clearing trainer levels")
	}
	if len(levelIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		"INSERT INTO trainer_levels (trainer_id, level_id) SELECT $1, UNNEST($2::uuid[])", trainerID, pq.Array(levelIDs))
	return errors.Wrap(err, "setting trainer levels")
}

func (repo trainerRepository) LevelIDs(ctx context.Context, trainerIDs ...string) (map[string][]string, error) {
	rows := make([]struct {
		TrainerID string `db:"trainer_id"`
		LevelID   string `db:"level_id"`
	}, 0)
	err := repo.exec.SelectContext(ctx, &rows, `
		SELECT tl.trainer_id, tl.level_id
		FROM trainer_levels tl JOIN levels l ON l.id = tl.level_id
		WHERE tl.trainer_id = ANY($1)
		ORDER BY l.position, l.name`, pq.Array(trainerIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying trainer levels")
	}
	levels := make(map[string][]string, len(trainerIDs))
	for _, r := range rows {
		levels[r.TrainerID] = append(levels[r.TrainerID], r.LevelID)
	}
	return levels, nil
}
