package level

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

var (
	ErrNotFound = core.NewNotFoundError("level")

	ErrNameExists     = errors.New("a level with this name already exists")
	ErrUnknownCourses = errors.New("unknown courses")
)

// Level groups courses of the shared catalog; batches follow a Level.
type Level struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Position    int       `db:"position" json:"position"`
	CourseIDs   []string  `db:"-" json:"courseIds"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type NewLevel struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Position    int    `json:"position" validate:"min=0"`
}

func (nl *NewLevel) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nl.Name = core.CleanName(nl.Name)
	nl.Description = core.CleanString(nl.Description)
	if err := validate.Struct(nl); err != nil {
		return err
	}
	return svc.CheckNameUniqueness(ctx, nl.Name)
}

type UpdateLevel struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
}

func (ul *UpdateLevel) Validate(ctx context.Context, orig Level, validate *validator.Validate, svc *Service) error {
	if ul.Name != nil {
		*ul.Name = core.CleanName(*ul.Name)
	}
	if ul.Description != nil {
		*ul.Description = core.CleanString(*ul.Description)
	}
	if err := validate.Struct(ul); err != nil {
		return err
	}
	if ul.Name != nil && !strings.EqualFold(*ul.Name, orig.Name) {
		return svc.CheckNameUniqueness(ctx, *ul.Name, orig)
	}
	return nil
}

// SetCourses is the ordered list of the courses of a Level.
type SetCourses struct {
	CourseIDs []string `json:"courseIds" validate:"dive,uuid"`
}

func (sc *SetCourses) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	sc.CourseIDs = core.UniqueStrings(sc.CourseIDs)
	if err := validate.Struct(sc); err != nil {
		return err
	}
	if len(sc.CourseIDs) == 0 {
		return nil
	}
	missing, err := svc.repo.MissingCourses(ctx, sc.CourseIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return core.NewFieldError("courseIds", errors.Wrap(ErrUnknownCourses, strings.Join(missing, ", ")))
	}
	return nil
}

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excluded ...Level) error
		CreateLevel(ctx context.Context, l Level) (Level, error)
		QueryLevels(ctx context.Context) ([]Level, error)
		GetLevel(ctx context.Context, id string) (Level, error)
		UpdateLevel(ctx context.Context, l Level) (Level, error)
		DeleteLevel(ctx context.Context, id string) error

		MissingCourses(ctx context.Context, courseIDs []string) ([]string, error)
		// SetCourses replaces the courses of the level, keeping the order of `courseIDs`.
		SetCourses(ctx context.Context, levelID string, courseIDs []string, exec ...core.DBExecutor) error
		CourseIDs(ctx context.Context, levelID string) ([]string, error)
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

func (svc *Service) CheckNameUniqueness(ctx context.Context, name string, excluded ...Level) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, excluded...); err != nil {
		if err == ErrNameExists {
			return core.NewFieldError("name", err)
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nl NewLevel) (Level, error) {
	now := time.Now().UTC()
	return svc.repo.CreateLevel(ctx, Level{
		ID:          uuid.New().String(),
		Name:        nl.Name,
		Description: nl.Description,
		Position:    nl.Position,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) QueryAll(ctx context.Context) ([]Level, error) {
	levels, err := svc.repo.QueryLevels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range levels {
		if levels[i].CourseIDs, err = svc.repo.CourseIDs(ctx, levels[i].ID); err != nil {
			return nil, err
		}
		if levels[i].CourseIDs == nil {
			levels[i].CourseIDs = []string{}
		}
	}
	return levels, nil
}

// Get returns the Level along with its ordered course ids.
func (svc *Service) Get(ctx context.Context, id string) (Level, error) {
	l, err := svc.repo.GetLevel(ctx, id)
	if err != nil {
		return Level{}, err
	}
	if l.CourseIDs, err = svc.repo.CourseIDs(ctx, l.ID); err != nil {
		return Level{}, err
	}
	if l.CourseIDs == nil {
		l.CourseIDs = []string{}
	}
	return l, nil
}

func (svc *Service) Update(ctx context.Context, orig Level, ul UpdateLevel) (Level, error) {
	if ul.Name != nil {
		orig.Name = *ul.Name
	}
	if ul.Description != nil {
		orig.Description = *ul.Description
	}
	if ul.Position != nil {
		orig.Position = *ul.Position
	}
	orig.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateLevel(ctx, orig); err != nil {
		return Level{}, err
	}
	return svc.Get(ctx, orig.ID)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteLevel(ctx, id)
}

func (svc *Service) SetCourses(ctx context.Context, l Level, courseIDs []string) (Level, error) {
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.SetCourses(ctx, l.ID, courseIDs, exec)
	})
	if err != nil {
		return Level{}, err
	}
	return svc.Get(ctx, l.ID)
}
