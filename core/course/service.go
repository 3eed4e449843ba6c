package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

const DefaultPassPercent = 50

var (
	ErrNotFound       = core.NewNotFoundError("course")
	ErrLessonNotFound = core.NewNotFoundError("lesson")
	ErrQuizNotFound   = core.NewNotFoundError("quiz")

	ErrSlugExists = errors.New("a course with this slug already exists")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slug string, excluded ...Course) error
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Title or Course.Description.
		// QueryFilter.StudentID keeps courses of the levels of the student's batches;
		// QueryFilter.TrainerID keeps courses of the trainer's levels and of the levels of their batches.
		QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error

		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error
		// ShiftLessons moves by `delta` the lessons of the course positioned at `from` or after.
		ShiftLessons(ctx context.Context, courseID string, from, delta int, exec ...core.DBExecutor) error
		CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)

		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		QueryQuizzes(ctx context.Context, courseID string) ([]Quiz, error)
		GetQuiz(ctx context.Context, id string) (Quiz, error)
		UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		DeleteQuiz(ctx context.Context, id string) error
	}

	// Service manages the catalog shared by every school.
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

func (svc *Service) CheckSlugUniqueness(ctx context.Context, slug string, excluded ...Course) error {
	if err := svc.repo.CheckSlugUniqueness(ctx, slug, excluded...); err != nil {
		if err == ErrSlugExists {
			return core.NewFieldError("slug", err)
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	return svc.repo.CreateCourse(ctx, Course{
		ID:           uuid.New().String(),
		Title:        nc.Title,
		Slug:         nc.Slug,
		Description:  nc.Description,
		ThumbnailURL: null.NewString(nc.ThumbnailURL, nc.ThumbnailURL != ""),
		IsPublished:  nc.IsPublished,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Update(ctx context.Context, orig Course, uc UpdateCourse) (Course, error) {
	uc.Apply(&orig)
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, orig)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

// Lessons

// AddLesson inserts a Lesson at li.Position (1-based), shifting the following lessons. Position 0 appends it.
func (svc *Service) AddLesson(ctx context.Context, c Course, li LessonInput) (Lesson, error) {
	now := time.Now().UTC()
	l := Lesson{
		ID:              uuid.New().String(),
		CourseID:        c.ID,
		Title:           li.Title,
		Content:         li.Content,
		VideoURL:        null.NewString(li.VideoURL, li.VideoURL != ""),
		AttachmentURL:   null.NewString(li.AttachmentURL, li.AttachmentURL != ""),
		DurationMinutes: li.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		count, err := svc.repo.CountLessons(ctx, c.ID, exec)
		if err != nil {
			return err
		}
		l.Position = li.Position
		if l.Position <= 0 || l.Position > count {
			l.Position = count + 1
		} else if err = svc.repo.ShiftLessons(ctx, c.ID, l.Position, 1, exec); err != nil {
			return err
		}
		l, err = svc.repo.CreateLesson(ctx, l, exec)
		return err
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *Service) QueryLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

// UpdateLesson replaces the Lesson, moving it to li.Position when it changed.
func (svc *Service) UpdateLesson(ctx context.Context, orig Lesson, li LessonInput) (Lesson, error) {
	l := orig
	l.Title = li.Title
	l.Content = li.Content
	l.VideoURL = null.NewString(li.VideoURL, li.VideoURL != "")
	l.AttachmentURL = null.NewString(li.AttachmentURL, li.AttachmentURL != "")
	l.DurationMinutes = li.DurationMinutes
	l.UpdatedAt = time.Now().UTC()

	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if li.Position > 0 && li.Position != orig.Position {
			count, err := svc.repo.CountLessons(ctx, orig.CourseID, exec)
			if err != nil {
				return err
			}
			pos := li.Position
			if pos > count {
				pos = count
			}
			// close the gap, then open a new one
			if err = svc.repo.ShiftLessons(ctx, orig.CourseID, orig.Position+1, -1, exec); err != nil {
				return err
			}
			if err = svc.repo.ShiftLessons(ctx, orig.CourseID, pos, 1, exec); err != nil {
				return err
			}
			l.Position = pos
		}
		var err error
		l, err = svc.repo.UpdateLesson(ctx, l, exec)
		return err
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *Service) DeleteLesson(ctx context.Context, l Lesson) error {
	return svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteLesson(ctx, l.ID, exec); err != nil {
			return err
		}
		return svc.repo.ShiftLessons(ctx, l.CourseID, l.Position+1, -1, exec)
	})
}

// Quizzes

func (svc *Service) AddQuiz(ctx context.Context, c Course, qi QuizInput) (Quiz, error) {
	now := time.Now().UTC()
	return svc.repo.CreateQuiz(ctx, Quiz{
		ID:          uuid.New().String(),
		CourseID:    c.ID,
		LessonID:    null.NewString(qi.LessonID, qi.LessonID != ""),
		Title:       qi.Title,
		PassPercent: qi.passPercent(),
		Questions:   qi.Questions,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) QueryQuizzes(ctx context.Context, courseID string) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, courseID)
}

func (svc *Service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

func (svc *Service) UpdateQuiz(ctx context.Context, orig Quiz, qi QuizInput) (Quiz, error) {
	orig.Title = qi.Title
	orig.LessonID = null.NewString(qi.LessonID, qi.LessonID != "")
	orig.PassPercent = qi.passPercent()
	orig.Questions = qi.Questions
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateQuiz(ctx, orig)
}

func (svc *Service) DeleteQuiz(ctx context.Context, id string) error {
	return svc.repo.DeleteQuiz(ctx, id)
}
