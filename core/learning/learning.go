package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/lib/pq"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/course"
)

type LessonCompletion struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"studentId"`
	LessonID    string    `db:"lesson_id" json:"lessonId"`
	CourseID    string    `db:"course_id" json:"courseId"`
	CompletedAt time.Time `db:"completed_at" json:"completedAt"`
}

type QuizAttempt struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"studentId"`
	QuizID        string        `db:"quiz_id" json:"quizId"`
	CourseID      string        `db:"course_id" json:"courseId"`
	Answers       pq.Int64Array `db:"answers" json:"answers"`
	Score         int           `db:"score" json:"score"`
	MaxScore      int           `db:"max_score" json:"maxScore"`
	Passed        bool          `db:"passed" json:"passed"`
	AttemptNumber int           `db:"attempt_number" json:"attemptNumber"`
	AttemptedAt   time.Time     `db:"attempted_at" json:"attemptedAt"`
}

// Percent is the score of the attempt, out of 100.
func (a QuizAttempt) Percent() float64 {
	if a.MaxScore == 0 {
		return 0
	}
	return float64(a.Score) * 100 / float64(a.MaxScore)
}

// NewAttempt holds the index of the option picked for each question, in order; -1 skips a question.
type NewAttempt struct {
	Answers []int `json:"answers" validate:"required,dive,min=-1"`
}

// AttemptFilter scopes the attempts listed for a quiz.
type AttemptFilter struct {
	StudentID string `query:"studentId"`

	// scopes, set from the Actor
	SchoolID  string `query:"-"`
	TrainerID string `query:"-"`
}

type (
	Repository interface {
		// CanAccessCourse reports whether the course belongs to a level followed by one of the student's batches.
		CanAccessCourse(ctx context.Context, studentID, courseID string) (bool, error)

		// CompleteLesson records the completion unless it exists; the stored completion is returned either way.
		CompleteLesson(ctx context.Context, c LessonCompletion) (LessonCompletion, bool, error)
		UncompleteLesson(ctx context.Context, studentID, lessonID string) error

		CountAttempts(ctx context.Context, studentID, quizID string, exec ...core.DBExecutor) (int, error)
		CreateAttempt(ctx context.Context, a QuizAttempt, exec ...core.DBExecutor) (QuizAttempt, error)
		// QueryAttempts lists the attempts of a quiz, latest first, applying AND operation on the AttemptFilter fields.
		// AttemptFilter.SchoolID keeps attempts of the school's students;
		// AttemptFilter.TrainerID keeps attempts of the students of the trainer's batches.
		QueryAttempts(ctx context.Context, quizID string, filter AttemptFilter) ([]QuizAttempt, error)
	}

	// Catalog gives access to lessons and quizzes.
	Catalog interface {
		Get(ctx context.Context, id string) (course.Course, error)
		GetLesson(ctx context.Context, id string) (course.Lesson, error)
		GetQuiz(ctx context.Context, id string) (course.Quiz, error)
	}

	Service struct {
		repo    Repository
		tx      core.Transactor
		catalog Catalog
	}
)

func NewService(repo Repository, tx core.Transactor, catalog Catalog) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(catalog, "catalog"),
	).CheckAndPanic()

	return &Service{repo: repo, tx: tx, catalog: catalog}
}

// checkAccess returns core.ErrPermissionDenied unless the student follows the published course.
func (svc *Service) checkAccess(ctx context.Context, studentID, courseID string) error {
	c, err := svc.catalog.Get(ctx, courseID)
	if err != nil {
		return err
	}
	if !c.IsPublished {
		return core.ErrPermissionDenied
	}
	ok, err := svc.repo.CanAccessCourse(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrPermissionDenied
	}
	return nil
}

// CompleteLesson marks the lesson as completed by the student. Completing it again is a no-op.
func (svc *Service) CompleteLesson(ctx context.Context, studentID, lessonID string) (LessonCompletion, bool, error) {
	l, err := svc.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonCompletion{}, false, err
	}
	if err := svc.checkAccess(ctx, studentID, l.CourseID); err != nil {
		return LessonCompletion{}, false, err
	}
	return svc.repo.CompleteLesson(ctx, LessonCompletion{
		ID:          uuid.New().String(),
		StudentID:   studentID,
		LessonID:    l.ID,
		CourseID:    l.CourseID,
		CompletedAt: time.Now().UTC(),
	})
}

// UncompleteLesson removes the completion, if any.
func (svc *Service) UncompleteLesson(ctx context.Context, studentID, lessonID string) error {
	l, err := svc.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if err := svc.checkAccess(ctx, studentID, l.CourseID); err != nil {
		return err
	}
	return svc.repo.UncompleteLesson(ctx, studentID, l.ID)
}

// Grade scores `answers` against the quiz's answer key. Missing answers score nothing.
func Grade(quiz course.Quiz, answers []int) (score, maxScore int, passed bool) {
	for i, q := range quiz.Questions {
		maxScore += q.Weight()
		if i < len(answers) && q.Answer != nil && answers[i] == *q.Answer {
			score += q.Weight()
		}
	}
	if maxScore == 0 {
		return 0, 0, false
	}
	passed = score*100 >= quiz.PassPercent*maxScore
	return score, maxScore, passed
}

// SubmitAttempt grades and records a new attempt of the student at the quiz.
func (svc *Service) SubmitAttempt(ctx context.Context, studentID, quizID string, na NewAttempt) (QuizAttempt, error) {
	quiz, err := svc.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if err := svc.checkAccess(ctx, studentID, quiz.CourseID); err != nil {
		return QuizAttempt{}, err
	}

	score, maxScore, passed := Grade(quiz, na.Answers)
	answers := make(pq.Int64Array, len(na.Answers))
	for i, a := range na.Answers {
		answers[i] = int64(a)
	}
	attempt := QuizAttempt{
		ID:          uuid.New().String(),
		StudentID:   studentID,
		QuizID:      quiz.ID,
		CourseID:    quiz.CourseID,
		Answers:     answers,
		Score:       score,
		MaxScore:    maxScore,
		Passed:      passed,
		AttemptedAt: time.Now().UTC(),
	}

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		count, err := svc.repo.CountAttempts(ctx, studentID, quiz.ID, exec)
		if err != nil {
			return err
		}
		attempt.AttemptNumber = count + 1
		attempt, err = svc.repo.CreateAttempt(ctx, attempt, exec)
		return err
	})
	if err != nil {
		return QuizAttempt{}, err
	}
	return attempt, nil
}

func (svc *Service) QueryAttempts(ctx context.Context, quizID string, filter AttemptFilter) ([]QuizAttempt, error) {
	if _, err := svc.catalog.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAttempts(ctx, quizID, filter)
}
