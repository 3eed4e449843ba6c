package batch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

var (
	ErrNotFound = core.NewNotFoundError("batch")

	ErrNameExists     = errors.New("a batch with this name already exists")
	ErrEndBeforeStart = errors.New("must not be before the start date")
	ErrUnknownLevel   = errors.New("unknown level")
	ErrForeignMembers = errors.New("not members of this school")
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, schoolID, name string, excluded ...Batch) error
		LevelExists(ctx context.Context, levelID string) (bool, error)
		// ForeignTrainers returns the ids of `ids` which are not trainers of the school; ForeignStudents likewise.
		ForeignTrainers(ctx context.Context, schoolID string, ids []string) ([]string, error)
		ForeignStudents(ctx context.Context, schoolID string, ids []string) ([]string, error)

		CreateBatch(ctx context.Context, b Batch, exec ...core.DBExecutor) (Batch, error)
		// QueryBatches applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Batch.Name or Batch.Description.
		QueryBatches(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Batch, error)
		GetBatch(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Batch, error)
		UpdateBatch(ctx context.Context, b Batch) (Batch, error)
		DeleteBatch(ctx context.Context, schoolID, id string) error

		SetTrainers(ctx context.Context, batchID string, trainerIDs []string, exec ...core.DBExecutor) error
		SetStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error
		// AddStudents enrolls students, ignoring those already enrolled.
		AddStudents(ctx context.Context, batchID string, studentIDs []string, exec ...core.DBExecutor) error
		MemberIDs(ctx context.Context, batchID string) (trainerIDs, studentIDs []string, err error)
		HasTrainer(ctx context.Context, batchID, trainerID string) (bool, error)
		HasStudent(ctx context.Context, batchID, studentID string) (bool, error)
	}

	Service struct {
		repo Repository
		tx   core.Transactor
	}
)

func NewService(repo Repository, tx core.Transactor) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
	).CheckAndPanic()

	return &Service{repo: repo, tx: tx}
}

func (svc *Service) CheckNameUniqueness(ctx context.Context, schoolID, name string, excluded ...Batch) error {
	if err := svc.repo.CheckNameUniqueness(ctx, schoolID, name, excluded...); err != nil {
		if err == ErrNameExists {
			return core.NewFieldError("name", err)
		}
		return err
	}
	return nil
}

func (svc *Service) CheckLevel(ctx context.Context, levelID string) error {
	if levelID == "" {
		return nil
	}
	ok, err := svc.repo.LevelExists(ctx, levelID)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewFieldError("levelId", ErrUnknownLevel)
	}
	return nil
}

// CheckMembers makes sure every trainer and student id belongs to the school.
func (svc *Service) CheckMembers(ctx context.Context, schoolID string, trainerIDs, studentIDs []string) error {
	var fields []core.FieldError
	if len(trainerIDs) > 0 {
		foreign, err := svc.repo.ForeignTrainers(ctx, schoolID, trainerIDs)
		if err != nil {
			return err
		}
		if len(foreign) > 0 {
			fields = append(fields, core.FieldError{Field: "trainerIds", Error: ErrForeignMembers.Error() + ": " + strings.Join(foreign, ", ")})
		}
	}
	if len(studentIDs) > 0 {
		foreign, err := svc.repo.ForeignStudents(ctx, schoolID, studentIDs)
		if err != nil {
			return err
		}
		if len(foreign) > 0 {
			fields = append(fields, core.FieldError{Field: "studentIds", Error: ErrForeignMembers.Error() + ": " + strings.Join(foreign, ", ")})
		}
	}
	if len(fields) > 0 {
		return core.NewValidationError(ErrForeignMembers, fields...)
	}
	return nil
}

// Create inserts the Batch along with its trainers and students in a single transaction.
func (svc *Service) Create(ctx context.Context, schoolID string, nb NewBatch) (Batch, error) {
	now := time.Now().UTC()
	b := Batch{
		ID:          uuid.New().String(),
		SchoolID:    schoolID,
		LevelID:     null.NewString(nb.LevelID, nb.LevelID != ""),
		Name:        nb.Name,
		Description: nb.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nb.StartDate != nil {
		b.StartDate = null.TimeFrom(nb.StartDate.UTC())
	}
	if nb.EndDate != nil {
		b.EndDate = null.TimeFrom(nb.EndDate.UTC())
	}

	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if b, err = svc.repo.CreateBatch(ctx, b, exec); err != nil {
			return errors.Wrap(err, "creating batch")
		}
		if err = svc.repo.SetTrainers(ctx, b.ID, nb.TrainerIDs, exec); err != nil {
			return errors.Wrap(err, "adding trainers")
		}
		return errors.Wrap(svc.repo.SetStudents(ctx, b.ID, nb.StudentIDs, exec), "adding students")
	})
	if err != nil {
		return Batch{}, err
	}
	b.TrainerIDs = append([]string{}, nb.TrainerIDs...)
	b.StudentIDs = append([]string{}, nb.StudentIDs...)
	return b, nil
}

func (svc *Service) Query(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Batch, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryBatches(ctx, schoolID, filter, ordering)
}

// Get returns the Batch along with its trainer and student ids.
func (svc *Service) Get(ctx context.Context, schoolID, id string) (Batch, error) {
	b, err := svc.repo.GetBatch(ctx, schoolID, id)
	if err != nil {
		return Batch{}, err
	}
	if b.TrainerIDs, b.StudentIDs, err = svc.repo.MemberIDs(ctx, b.ID); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (svc *Service) Update(ctx context.Context, orig Batch, ub UpdateBatch) (Batch, error) {
	ub.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateBatch(ctx, orig); err != nil {
		return Batch{}, err
	}
	return svc.Get(ctx, orig.SchoolID, orig.ID)
}

func (svc *Service) Delete(ctx context.Context, schoolID, id string) error {
	return svc.repo.DeleteBatch(ctx, schoolID, id)
}

func (svc *Service) SetTrainers(ctx context.Context, b Batch, trainerIDs []string) (Batch, error) {
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.SetTrainers(ctx, b.ID, trainerIDs, exec)
	})
	if err != nil {
		return Batch{}, err
	}
	return svc.Get(ctx, b.SchoolID, b.ID)
}

func (svc *Service) SetStudents(ctx context.Context, b Batch, studentIDs []string) (Batch, error) {
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.SetStudents(ctx, b.ID, studentIDs, exec)
	})
	if err != nil {
		return Batch{}, err
	}
	return svc.Get(ctx, b.SchoolID, b.ID)
}

func (svc *Service) AddStudents(ctx context.Context, b Batch, studentIDs []string) (Batch, error) {
	if err := svc.repo.AddStudents(ctx, b.ID, studentIDs); err != nil {
		return Batch{}, err
	}
	return svc.Get(ctx, b.SchoolID, b.ID)
}

// Enroll adds a single student of the school to a batch of the same school.
func (svc *Service) Enroll(ctx context.Context, schoolID, batchID, studentID string) error {
	if _, err := svc.repo.GetBatch(ctx, schoolID, batchID); err != nil {
		return err
	}
	return svc.repo.AddStudents(ctx, batchID, []string{studentID})
}

func (svc *Service) HasTrainer(ctx context.Context, batchID, trainerID string) (bool, error) {
	if trainerID == "" {
		return false, nil
	}
	return svc.repo.HasTrainer(ctx, batchID, trainerID)
}

func (svc *Service) HasStudent(ctx context.Context, batchID, studentID string) (bool, error) {
	if studentID == "" {
		return false, nil
	}
	return svc.repo.HasStudent(ctx, batchID, studentID)
}
