package assignment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/course"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/student"
)

var (
	ErrNotFound           = core.NewNotFoundError("assignment")
	ErrSubmissionNotFound = core.NewNotFoundError("submission")

	ErrAlreadyGraded = errors.New("this submission has already been graded")
	ErrTooManyPoints = errors.New("must not exceed the maximum points of the assignment")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// QueryAssignments applies AND operation on available QueryFilter fields, latest due first.
		// QueryFilter.TrainerID keeps assignments of the trainer's batches, QueryFilter.StudentID those of the student's batches.
		QueryAssignments(ctx context.Context, schoolID string, filter QueryFilter) ([]Assignment, error)
		GetAssignment(ctx context.Context, schoolID, id string) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, schoolID, id string) error

		// UpsertSubmission creates the submission of the student or replaces its content.
		UpsertSubmission(ctx context.Context, s Submission) (Submission, error)
		// QuerySubmissions lists the submissions of an assignment; `studentID` (when set) restricts them to one student.
		QuerySubmissions(ctx context.Context, assignmentID, studentID string) ([]Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error)
		GradeSubmission(ctx context.Context, s Submission) (Submission, error)
	}

	Batches interface {
		Get(ctx context.Context, schoolID, id string) (batch.Batch, error)
		HasTrainer(ctx context.Context, batchID, trainerID string) (bool, error)
		HasStudent(ctx context.Context, batchID, studentID string) (bool, error)
	}

	Catalog interface {
		Get(ctx context.Context, id string) (course.Course, error)
	}

	Students interface {
		Get(ctx context.Context, schoolID string, lookup member.Lookup) (student.Student, error)
	}

	Service struct {
		repo     Repository
		batches  Batches
		catalog  Catalog
		students Students
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(repo Repository, batches Batches, catalog Catalog, students Students, mailSvc core.EmailService, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(batches, "batches"),
		vala.IsNotNil(catalog, "catalog"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, batches: batches, catalog: catalog, students: students, mailSvc: mailSvc, logger: logger}
}

// CanManage reports whether the Actor may write the assignments of the batch: school admins and the batch's trainers.
func (svc *Service) CanManage(ctx context.Context, actor member.Actor, batchID string) (bool, error) {
	if actor.IsSchoolAdmin() {
		return true, nil
	}
	if actor.IsTrainer() {
		return svc.batches.HasTrainer(ctx, batchID, actor.TrainerID)
	}
	return false, nil
}

// CanView reports whether the Actor may read the assignment: its managers and the students of its batch.
func (svc *Service) CanView(ctx context.Context, actor member.Actor, a Assignment) (bool, error) {
	if ok, err := svc.CanManage(ctx, actor, a.BatchID); ok || err != nil {
		return ok, err
	}
	if actor.IsStudent() {
		return svc.batches.HasStudent(ctx, a.BatchID, actor.StudentID)
	}
	return false, nil
}

func (svc *Service) checkRefs(ctx context.Context, schoolID, batchID, courseID string) error {
	if batchID != "" {
		if _, err := svc.batches.Get(ctx, schoolID, batchID); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("batchId", err)
			}
			return err
		}
	}
	if courseID != "" {
		if _, err := svc.catalog.Get(ctx, courseID); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("courseId", err)
			}
			return err
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor member.Actor, na NewAssignment) (Assignment, error) {
	if err := svc.checkRefs(ctx, actor.SchoolID, na.BatchID, na.CourseID); err != nil {
		return Assignment{}, err
	}
	if ok, err := svc.CanManage(ctx, actor, na.BatchID); err != nil {
		return Assignment{}, err
	} else if !ok {
		return Assignment{}, core.ErrPermissionDenied
	}

	now := time.Now().UTC()
	a := Assignment{
		ID:            uuid.New().String(),
		SchoolID:      actor.SchoolID,
		BatchID:       na.BatchID,
		CourseID:      null.NewString(na.CourseID, na.CourseID != ""),
		CreatedBy:     null.NewString(actor.TrainerID, actor.TrainerID != ""),
		Title:         na.Title,
		Instructions:  na.Instructions,
		AttachmentURL: null.NewString(na.AttachmentURL, na.AttachmentURL != ""),
		MaxPoints:     100,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if na.DueAt != nil {
		a.DueAt = null.TimeFrom(na.DueAt.UTC())
	}
	if na.MaxPoints != nil {
		a.MaxPoints = *na.MaxPoints
	}
	return svc.repo.CreateAssignment(ctx, a)
}

// Query lists the assignments visible to the Actor.
func (svc *Service) Query(ctx context.Context, actor member.Actor, filter QueryFilter) ([]Assignment, error) {
	switch {
	case actor.IsSchoolAdmin():
	case actor.IsTrainer() && actor.TrainerID != "":
		filter.TrainerID = actor.TrainerID
	case actor.IsStudent() && actor.StudentID != "":
		filter.StudentID = actor.StudentID
	default:
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryAssignments(ctx, actor.SchoolID, filter)
}

// Get returns the assignment when the Actor may read it; others get ErrNotFound.
func (svc *Service) Get(ctx context.Context, actor member.Actor, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, actor.SchoolID, id)
	if err != nil {
		return Assignment{}, err
	}
	if ok, err := svc.CanView(ctx, actor, a); err != nil {
		return Assignment{}, err
	} else if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (svc *Service) Update(ctx context.Context, actor member.Actor, orig Assignment, ua UpdateAssignment) (Assignment, error) {
	if ok, err := svc.CanManage(ctx, actor, orig.BatchID); err != nil {
		return Assignment{}, err
	} else if !ok {
		return Assignment{}, core.ErrPermissionDenied
	}
	if ua.CourseID != nil {
		if err := svc.checkRefs(ctx, actor.SchoolID, "", *ua.CourseID); err != nil {
			return Assignment{}, err
		}
	}
	ua.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, orig)
}

func (svc *Service) Delete(ctx context.Context, actor member.Actor, a Assignment) error {
	if ok, err := svc.CanManage(ctx, actor, a.BatchID); err != nil {
		return err
	} else if !ok {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteAssignment(ctx, a.SchoolID, a.ID)
}

// Submit records the work of the Actor (a student of the batch). Resubmitting replaces the content until graded.
func (svc *Service) Submit(ctx context.Context, actor member.Actor, a Assignment, ns NewSubmission) (Submission, error) {
	if !actor.IsStudent() || actor.StudentID == "" {
		return Submission{}, core.ErrPermissionDenied
	}
	if ok, err := svc.batches.HasStudent(ctx, a.BatchID, actor.StudentID); err != nil {
		return Submission{}, err
	} else if !ok {
		return Submission{}, core.ErrPermissionDenied
	}

	prev, err := svc.repo.GetStudentSubmission(ctx, a.ID, actor.StudentID)
	if err == nil && prev.IsGraded() {
		return Submission{}, core.NewValidationError(ErrAlreadyGraded)
	} else if err != nil && !core.IsNotFound(err) {
		return Submission{}, err
	}

	sub, err := svc.repo.UpsertSubmission(ctx, Submission{
		ID:            uuid.New().String(),
		AssignmentID:  a.ID,
		StudentID:     actor.StudentID,
		Content:       ns.Content,
		AttachmentURL: null.NewString(ns.AttachmentURL, ns.AttachmentURL != ""),
		SubmittedAt:   time.Now().UTC(),
	})
	if errors.Cause(err) == ErrAlreadyGraded {
		// graded since it was read
		return Submission{}, core.NewValidationError(ErrAlreadyGraded)
	} else if err != nil {
		return Submission{}, err
	}
	sub.markLate(a)
	return sub, nil
}

// QuerySubmissions lists the submissions of the assignment: all of them for its managers, their own for students.
func (svc *Service) QuerySubmissions(ctx context.Context, actor member.Actor, a Assignment) ([]Submission, error) {
	studentID := ""
	if ok, err := svc.CanManage(ctx, actor, a.BatchID); err != nil {
		return nil, err
	} else if !ok {
		if !actor.IsStudent() || actor.StudentID == "" {
			return nil, core.ErrPermissionDenied
		}
		studentID = actor.StudentID
	}

	subs, err := svc.repo.QuerySubmissions(ctx, a.ID, studentID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].markLate(a)
	}
	return subs, nil
}

// Grade scores a submission and notifies its student by email.
func (svc *Service) Grade(ctx context.Context, actor member.Actor, submissionID string, g Grade) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	a, err := svc.repo.GetAssignment(ctx, actor.SchoolID, sub.AssignmentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Submission{}, ErrSubmissionNotFound
		}
		return Submission{}, err
	}
	if ok, err := svc.CanManage(ctx, actor, a.BatchID); err != nil {
		return Submission{}, err
	} else if !ok {
		return Submission{}, core.ErrPermissionDenied
	}
	if *g.Points > a.MaxPoints {
		return Submission{}, core.NewFieldError("points", ErrTooManyPoints)
	}

	sub.Points = null.IntFrom(*g.Points)
	sub.Feedback = g.Feedback
	sub.GradedAt = null.TimeFrom(time.Now().UTC())
	sub.GradedBy = null.StringFrom(actor.UserID)
	if sub, err = svc.repo.GradeSubmission(ctx, sub); err != nil {
		return Submission{}, err
	}
	sub.markLate(a)

	svc.notifyGraded(ctx, a, sub)
	return sub, nil
}

func (svc *Service) notifyGraded(ctx context.Context, a Assignment, sub Submission) {
	st, err := svc.students.Get(ctx, a.SchoolID, member.Lookup{ID: sub.StudentID})
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying grade of submission %s", sub.ID), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: st.Name, Address: st.Email}},
		Subject:      "Your submission has been graded: " + a.Title,
		TemplateName: "submission_graded",
		TemplateData: struct {
			StudentName     string
			AssignmentTitle string
			AssignmentID    string
			Points          int
			MaxPoints       int
			Feedback        string
		}{st.Name, a.Title, a.ID, sub.Points.Int, a.MaxPoints, sub.Feedback},
	})
}
