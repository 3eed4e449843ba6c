package trainer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
)

var (
	ErrNotFound = core.NewNotFoundError("trainer")

	ErrEmailExists    = errors.New("a trainer with this email already exists")
	ErrVerifiedExists = errors.New("this school already has a verified trainer")
	ErrUnknownLevels  = errors.New("unknown levels")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, schoolID, email string, excluded ...Trainer) error
		CreateTrainer(ctx context.Context, t Trainer, exec ...core.DBExecutor) (Trainer, error)
		// QueryTrainers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Trainer.Name, Trainer.Email or Trainer.Specialization.
		QueryTrainers(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Trainer, error)
		GetTrainer(ctx context.Context, schoolID string, lookup member.Lookup, exec ...core.DBExecutor) (Trainer, error)
		// GetVerifiedTrainer returns ErrNotFound when the school has no verified trainer.
		GetVerifiedTrainer(ctx context.Context, schoolID string, exec ...core.DBExecutor) (Trainer, error)
		UpdateTrainer(ctx context.Context, t Trainer, exec ...core.DBExecutor) (Trainer, error)
		SetVerified(ctx context.Context, schoolID, id string, verified bool, exec ...core.DBExecutor) error
		DeleteTrainer(ctx context.Context, schoolID, id string) error

		// MissingLevels returns the ids of `levelIDs` matching no level.
		MissingLevels(ctx context.Context, levelIDs []string) ([]string, error)
		SetLevels(ctx context.Context, trainerID string, levelIDs []string, exec ...core.DBExecutor) error
		// LevelIDs maps each of `trainerIDs` to its level ids.
		LevelIDs(ctx context.Context, trainerIDs ...string) (map[string][]string, error)
	}

	Service struct {
		repo       Repository
		tx         core.Transactor
		reconciler *member.Reconciler
		logger     core.Logger
	}
)

func NewService(repo Repository, tx core.Transactor, reconciler *member.Reconciler, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(reconciler, "reconciler"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, tx: tx, reconciler: reconciler, logger: logger}
}

func (svc *Service) CheckUniqueness(ctx context.Context, schoolID, email string, excluded ...Trainer) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, schoolID, email, excluded...); err != nil {
		if err == ErrEmailExists {
			return core.NewFieldError("email", err)
		}
		return err
	}
	return nil
}

func (svc *Service) CheckLevels(ctx context.Context, levelIDs []string) error {
	if len(levelIDs) == 0 {
		return nil
	}
	missing, err := svc.repo.MissingLevels(ctx, levelIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return core.NewFieldError("levelIds", errors.Wrap(ErrUnknownLevels, strings.Join(missing, ", ")))
	}
	return nil
}

// Create inserts an unverified Trainer, then grants them the trainer role at the identity provider (best effort).
func (svc *Service) Create(ctx context.Context, sch school.School, nt NewTrainer) (Trainer, error) {
	now := time.Now().UTC()
	t := Trainer{
		ID:             uuid.New().String(),
		SchoolID:       sch.ID,
		Name:           nt.Name,
		Email:          nt.Email,
		Phone:          nt.Phone,
		Specialization: nt.Specialization,
		Bio:            nt.Bio,
		PhotoURL:       null.NewString(nt.PhotoURL, nt.PhotoURL != ""),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if t, err = svc.repo.CreateTrainer(ctx, t, exec); err != nil {
			return err
		}
		return svc.repo.SetLevels(ctx, t.ID, nt.LevelIDs, exec)
	})
	if err != nil {
		return Trainer{}, err
	}
	t.LevelIDs = append([]string{}, nt.LevelIDs...)

	res, err := svc.reconciler.Reconcile(ctx, sch.OrgID, t.Email, member.RoleTrainer)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("granting trainer role to %s", t.Email), err)
		return t, nil
	}
	if res.UserID != "" {
		t.UserID = null.StringFrom(res.UserID)
		levels := t.LevelIDs
		if t, err = svc.repo.UpdateTrainer(ctx, t); err != nil {
			return Trainer{}, err
		}
		t.LevelIDs = levels
	}
	return t, nil
}

func (svc *Service) Query(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Trainer, error) {
	filter.Search = core.CleanString(filter.Search)
	trainers, err := svc.repo.QueryTrainers(ctx, schoolID, filter, ordering)
	if err != nil {
		return nil, err
	}
	return trainers, svc.withLevels(ctx, trainers)
}

func (svc *Service) Get(ctx context.Context, schoolID string, lookup member.Lookup) (Trainer, error) {
	lookup.Email = core.CleanString(lookup.Email, true /* lower */)
	t, err := svc.repo.GetTrainer(ctx, schoolID, lookup)
	if err != nil {
		return Trainer{}, err
	}
	trainers := []Trainer{t}
	err = svc.withLevels(ctx, trainers)
	return trainers[0], err
}

func (svc *Service) withLevels(ctx context.Context, trainers []Trainer) error {
	if len(trainers) == 0 {
		return nil
	}
	ids := make([]string, len(trainers))
	for i, t := range trainers {
		ids[i] = t.ID
	}
	levels, err := svc.repo.LevelIDs(ctx, ids...)
	if err != nil {
		return err
	}
	for i := range trainers {
		trainers[i].LevelIDs = levels[trainers[i].ID]
		if trainers[i].LevelIDs == nil {
			trainers[i].LevelIDs = []string{}
		}
	}
	return nil
}

func (svc *Service) Update(ctx context.Context, orig Trainer, ut UpdateTrainer) (Trainer, error) {
	ut.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	t, err := svc.repo.UpdateTrainer(ctx, orig)
	if err != nil {
		return Trainer{}, err
	}
	t.LevelIDs = orig.LevelIDs
	return t, nil
}

// Verify marks the Trainer as verified. A school has at most one verified trainer:
// verifying a second one fails with a validation error until the first is unverified.
func (svc *Service) Verify(ctx context.Context, schoolID, id string) (Trainer, error) {
	var t Trainer
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if t, err = svc.repo.GetTrainer(ctx, schoolID, member.Lookup{ID: id}, exec); err != nil {
			return err
		}
		if t.IsVerified {
			return nil
		}

		verified, err := svc.repo.GetVerifiedTrainer(ctx, schoolID, exec)
		if err == nil && verified.ID != t.ID {
			return core.NewFieldError("isVerified", ErrVerifiedExists)
		} else if err != nil && !core.IsNotFound(err) {
			return err
		}

		if err := svc.repo.SetVerified(ctx, schoolID, t.ID, true, exec); err != nil {
			if err == ErrVerifiedExists {
				return core.NewFieldError("isVerified", err)
			}
			return err
		}
		t.IsVerified = true
		return nil
	})
	if err != nil {
		return Trainer{}, err
	}
	return svc.Get(ctx, schoolID, member.Lookup{ID: t.ID})
}

func (svc *Service) Unverify(ctx context.Context, schoolID, id string) (Trainer, error) {
	t, err := svc.repo.GetTrainer(ctx, schoolID, member.Lookup{ID: id})
	if err != nil {
		return Trainer{}, err
	}
	if t.IsVerified {
		if err := svc.repo.SetVerified(ctx, schoolID, t.ID, false); err != nil {
			return Trainer{}, err
		}
	}
	return svc.Get(ctx, schoolID, member.Lookup{ID: t.ID})
}

func (svc *Service) SetLevels(ctx context.Context, t Trainer, levelIDs []string) (Trainer, error) {
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.SetLevels(ctx, t.ID, levelIDs, exec)
	})
	if err != nil {
		return Trainer{}, err
	}
	return svc.Get(ctx, t.SchoolID, member.Lookup{ID: t.ID})
}

// Delete removes the Trainer and revokes their membership (best effort).
func (svc *Service) Delete(ctx context.Context, sch school.School, t Trainer) error {
	if err := svc.repo.DeleteTrainer(ctx, sch.ID, t.ID); err != nil {
		return err
	}
	if err := svc.reconciler.Revoke(ctx, sch.OrgID, t.UserID.String); err != nil {
		svc.logger.Warn(fmt.Sprintf("revoking membership of trainer %s", t.ID), err)
	}
	return nil
}

// Sync matches the identity user `p` with a Trainer of the School:
// by user id, else by email (linking the user id), else a new unverified Trainer is created.
func (svc *Service) Sync(ctx context.Context, schoolID string, p member.Principal) (Trainer, member.SyncResult, error) {
	var res member.SyncResult
	t, err := svc.Get(ctx, schoolID, member.Lookup{UserID: p.UserID})
	if err == nil {
		return t, res, nil
	} else if !core.IsNotFound(err) {
		return t, res, err
	}

	now := time.Now().UTC()
	email := core.CleanString(p.Email, true /* lower */)
	if email != "" {
		t, err = svc.Get(ctx, schoolID, member.Lookup{Email: email})
		if err == nil {
			t.UserID = null.StringFrom(p.UserID)
			t.UpdatedAt = now
			res.Linked = true
			levels := t.LevelIDs
			t, err = svc.repo.UpdateTrainer(ctx, t)
			t.LevelIDs = levels
			return t, res, err
		} else if !core.IsNotFound(err) {
			return t, res, err
		}
	}

	t, err = svc.repo.CreateTrainer(ctx, Trainer{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		UserID:    null.StringFrom(p.UserID),
		Name:      core.CleanString(p.Name),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	t.LevelIDs = []string{}
	res.Created = err == nil
	return t, res, err
}
