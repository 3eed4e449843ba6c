package student

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
)

var (
	ErrNotFound = core.NewNotFoundError("student")

	ErrEmailExists = errors.New("a student with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, schoolID, email string, excluded ...Student) error
		CreateStudent(ctx context.Context, s Student) (Student, error)
		// QueryStudents applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Student.Name, Student.Email or Student.RollNumber.
		QueryStudents(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetStudent(ctx context.Context, schoolID string, lookup member.Lookup) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudent(ctx context.Context, schoolID, id string) error
		// QueryPendingSyncs returns up to `limit` students of every school whose sync status is pending or failed, oldest first.
		QueryPendingSyncs(ctx context.Context, limit int) ([]PendingSync, error)
		// BatchIDs maps each of `studentIDs` to the ids of its batches.
		BatchIDs(ctx context.Context, studentIDs ...string) (map[string][]string, error)
	}

	// Enroller adds students to batches.
	Enroller interface {
		Get(ctx context.Context, schoolID, id string) (batch.Batch, error)
		Enroll(ctx context.Context, schoolID, batchID, studentID string) error
	}

	Service struct {
		repo       Repository
		enroller   Enroller
		reconciler *member.Reconciler
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

func NewService(repo Repository, enroller Enroller, reconciler *member.Reconciler, mailSvc core.EmailService, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(enroller, "enroller"),
		vala.IsNotNil(reconciler, "reconciler"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, enroller: enroller, reconciler: reconciler, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) CheckUniqueness(ctx context.Context, schoolID, email string, excluded ...Student) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, schoolID, email, excluded...); err != nil {
		if err == ErrEmailExists {
			return core.NewFieldError("email", err)
		}
		return err
	}
	return nil
}

// CheckBatch makes sure `batchID` (when set) is a batch of the school.
func (svc *Service) CheckBatch(ctx context.Context, schoolID, batchID string) error {
	if batchID == "" {
		return nil
	}
	if _, err := svc.enroller.Get(ctx, schoolID, batchID); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("batchId", err)
		}
		return err
	}
	return nil
}

// Create inserts a Student, enrolls them in ns.BatchID, reconciles their identity membership (best effort)
// and sends them a welcome email.
func (svc *Service) Create(ctx context.Context, sch school.School, ns NewStudent) (Student, error) {
	if err := svc.CheckBatch(ctx, sch.ID, ns.BatchID); err != nil {
		return Student{}, err
	}

	now := time.Now().UTC()
	s, err := svc.repo.CreateStudent(ctx, Student{
		ID:            uuid.New().String(),
		SchoolID:      sch.ID,
		Name:          ns.Name,
		Email:         ns.Email,
		Phone:         ns.Phone,
		RollNumber:    ns.RollNumber,
		Grade:         ns.Grade,
		GuardianName:  ns.GuardianName,
		GuardianPhone: ns.GuardianPhone,
		SyncStatus:    SyncPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Student{}, err
	}
	if ns.BatchID != "" {
		if err := svc.enroller.Enroll(ctx, sch.ID, ns.BatchID, s.ID); err != nil {
			return Student{}, errors.Wrap(err, "enrolling student")
		}
	}

	s, res, err := svc.reconcile(ctx, sch.OrgID, s)
	if err != nil {
		return Student{}, err
	}
	svc.sendWelcome(sch, s, res.Outcome == member.OutcomeInvited)
	return svc.Get(ctx, sch.ID, member.Lookup{ID: s.ID})
}

// Import upserts every row of a CSV roster by email, enrolls the students in `batchID` (when set),
// and reconciles their identity memberships.
// Rejected rows never abort the import: they are reported in ImportReport.Errors.
// Failed reconciliations leave the student with SyncFailed, to be retried by ReconcilePending.
func (svc *Service) Import(ctx context.Context, sch school.School, r io.Reader, batchID string, validate *validator.Validate, translator ut.Translator) (ImportReport, error) {
	report := ImportReport{Errors: []ImportError{}}
	if err := svc.CheckBatch(ctx, sch.ID, batchID); err != nil {
		return report, err
	}
	rows, err := ParseCSV(r)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		ns := row.Student
		ns.Clean()
		rowErr := func(err error) {
			report.Errors = append(report.Errors, ImportError{Row: row.Line, Email: ns.Email, Error: core.DescribeError(err, translator)})
		}

		if err := validate.Struct(&ns); err != nil {
			rowErr(err)
			continue
		}

		s, created, err := svc.upsert(ctx, sch.ID, ns)
		if err != nil {
			rowErr(err)
			continue
		}
		if batchID != "" {
			if err := svc.enroller.Enroll(ctx, sch.ID, batchID, s.ID); err != nil {
				rowErr(errors.Wrap(err, "enrolling student"))
				continue
			}
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}

		if s.SyncStatus == SyncSynced && !created {
			continue
		}
		s, res, err := svc.reconcile(ctx, sch.OrgID, s)
		if err != nil {
			rowErr(err)
			continue
		}
		switch {
		case s.SyncStatus == SyncFailed:
			report.SyncFailed++
		case res.Outcome == member.OutcomeInvited:
			report.Invited++
		default:
			report.Linked++
		}
		if created {
			svc.sendWelcome(sch, s, res.Outcome == member.OutcomeInvited)
		}
	}
	return report, nil
}

// upsert creates the Student of `ns.Email`, or updates the non-empty fields of the existing one.
func (svc *Service) upsert(ctx context.Context, schoolID string, ns NewStudent) (Student, bool, error) {
	now := time.Now().UTC()
	s, err := svc.repo.GetStudent(ctx, schoolID, member.Lookup{Email: ns.Email})
	if core.IsNotFound(err) {
		s, err = svc.repo.CreateStudent(ctx, Student{
			ID:            uuid.New().String(),
			SchoolID:      schoolID,
			Name:          ns.Name,
			Email:         ns.Email,
			Phone:         ns.Phone,
			RollNumber:    ns.RollNumber,
			Grade:         ns.Grade,
			GuardianName:  ns.GuardianName,
			GuardianPhone: ns.GuardianPhone,
			SyncStatus:    SyncPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return s, err == nil, err
	} else if err != nil {
		return Student{}, false, err
	}

	s.Name = ns.Name
	for dst, src := range map[*string]string{
		&s.Phone:         ns.Phone,
		&s.RollNumber:    ns.RollNumber,
		&s.Grade:         ns.Grade,
		&s.GuardianName:  ns.GuardianName,
		&s.GuardianPhone: ns.GuardianPhone,
	} {
		if src != "" {
			*dst = src
		}
	}
	s.UpdatedAt = now
	s, err = svc.repo.UpdateStudent(ctx, s)
	return s, false, err
}

// reconcile grants the student role to `s` at the identity provider and records the outcome on `s`.
// Provider failures are recorded (SyncFailed), not returned.
func (svc *Service) reconcile(ctx context.Context, orgID string, s Student) (Student, member.Reconciliation, error) {
	now := time.Now().UTC()
	res, err := svc.reconciler.Reconcile(ctx, orgID, s.Email, member.RoleStudent)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reconciling student %s", s.ID), err)
		s.SyncStatus = SyncFailed
		s.SyncError = null.StringFrom(err.Error())
	} else {
		s.SyncStatus = SyncSynced
		if res.Outcome == member.OutcomeInvited {
			s.SyncStatus = SyncInvited
		}
		if res.UserID != "" {
			s.UserID = null.StringFrom(res.UserID)
		}
		s.SyncError = null.String{}
		s.SyncedAt = null.TimeFrom(now)
	}
	s.UpdatedAt = now

	s, uErr := svc.repo.UpdateStudent(ctx, s)
	if uErr != nil {
		return s, res, errors.Wrap(uErr, "saving sync status")
	}
	return s, res, nil
}

// ReconcilePending retries the identity reconciliation of up to `limit` pending or failed students.
// It returns how many got synced.
func (svc *Service) ReconcilePending(ctx context.Context, limit int) (int, error) {
	pending, err := svc.repo.QueryPendingSyncs(ctx, limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		s, _, err := svc.reconcile(ctx, p.OrgID, p.Student)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("reconciling student %s", p.ID), err)
			continue
		}
		if s.SyncStatus != SyncFailed {
			synced++
		}
	}
	return synced, nil
}

func (svc *Service) sendWelcome(sch school.School, s Student, invited bool) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: s.Name, Address: s.Email}},
		Subject:      "Welcome to " + sch.Name,
		TemplateName: "student_welcome",
		TemplateData: struct {
			Name       string
			SchoolName string
			Email      string
			Invited    bool
		}{s.Name, sch.Name, s.Email, invited},
	})
}

func (svc *Service) Query(ctx context.Context, schoolID string, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryStudents(ctx, schoolID, filter, ordering)
}

// Get returns the Student along with the ids of its batches.
func (svc *Service) Get(ctx context.Context, schoolID string, lookup member.Lookup) (Student, error) {
	lookup.Email = core.CleanString(lookup.Email, true /* lower */)
	s, err := svc.repo.GetStudent(ctx, schoolID, lookup)
	if err != nil {
		return Student{}, err
	}
	batches, err := svc.repo.BatchIDs(ctx, s.ID)
	if err != nil {
		return Student{}, err
	}
	s.BatchIDs = batches[s.ID]
	if s.BatchIDs == nil {
		s.BatchIDs = []string{}
	}
	return s, nil
}

// Update saves the changes; a new email address is reconciled with the identity provider (best effort).
func (svc *Service) Update(ctx context.Context, sch school.School, orig Student, us UpdateStudent) (Student, error) {
	oldEmail := orig.Email
	us.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	s, err := svc.repo.UpdateStudent(ctx, orig)
	if err != nil {
		return Student{}, err
	}
	if s.Email != oldEmail {
		if s, _, err = svc.reconcile(ctx, sch.OrgID, s); err != nil {
			return Student{}, err
		}
	}
	return svc.Get(ctx, sch.ID, member.Lookup{ID: s.ID})
}

// Delete removes the Student and revokes their membership (best effort).
func (svc *Service) Delete(ctx context.Context, sch school.School, s Student) error {
	if err := svc.repo.DeleteStudent(ctx, sch.ID, s.ID); err != nil {
		return err
	}
	if err := svc.reconciler.Revoke(ctx, sch.OrgID, s.UserID.String); err != nil {
		svc.logger.Warn(fmt.Sprintf("revoking membership of student %s", s.ID), err)
	}
	return nil
}

// Sync matches the identity user `p` with a Student of the School:
// by user id, else by email (linking the user id), else a new Student is created.
func (svc *Service) Sync(ctx context.Context, schoolID string, p member.Principal) (Student, member.SyncResult, error) {
	var res member.SyncResult
	s, err := svc.Get(ctx, schoolID, member.Lookup{UserID: p.UserID})
	if err == nil {
		return s, res, nil
	} else if !core.IsNotFound(err) {
		return s, res, err
	}

	now := time.Now().UTC()
	email := core.CleanString(p.Email, true /* lower */)
	if email != "" {
		s, err = svc.Get(ctx, schoolID, member.Lookup{Email: email})
		if err == nil {
			s.UserID = null.StringFrom(p.UserID)
			s.SyncStatus = SyncSynced
			s.SyncError = null.String{}
			s.SyncedAt = null.TimeFrom(now)
			s.UpdatedAt = now
			res.Linked = true
			batches := s.BatchIDs
			s, err = svc.repo.UpdateStudent(ctx, s)
			s.BatchIDs = batches
			return s, res, err
		} else if !core.IsNotFound(err) {
			return s, res, err
		}
	}

	s, err = svc.repo.CreateStudent(ctx, Student{
		ID:         uuid.New().String(),
		SchoolID:   schoolID,
		UserID:     null.StringFrom(p.UserID),
		Name:       core.CleanString(p.Name),
		Email:      email,
		SyncStatus: SyncSynced,
		SyncedAt:   null.TimeFrom(now),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	s.BatchIDs = []string{}
	res.Created = err == nil
	return s, res, err
}
