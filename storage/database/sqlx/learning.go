package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/learning"
)

const (
	completionColumns = "id, student_id, lesson_id, course_id, completed_at"
	attemptColumns    = "id, student_id, quiz_id, course_id, answers, score, max_score, passed, attempt_number, attempted_at"
)

type learningRepository struct {
	repository
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(exec core.DBExecutor) *learningRepository {
	return &learningRepository{repository{exec: exec}}
}

func (repo learningRepository) CanAccessCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	var ok bool
	err := repo.exec.GetContext(ctx, &ok, `
		SELECT EXISTS (
			SELECT 1 FROM batch_students bs
			JOIN batches b ON b.id = bs.batch_id
			JOIN level_courses lc ON lc.level_id = b.level_id
			WHERE bs.student_id = $1 AND lc.course_id = $2
		)`, studentID, courseID)
	if err != nil {
		return false, errors.Wrap(err, "checking course access")
	}
	return ok, nil
}

func (repo learningRepository) CompleteLesson(ctx context.Context, c learning.LessonCompletion) (learning.LessonCompletion, bool, error) {
	var stored learning.LessonCompletion
	err := repo.exec.GetContext(ctx, &stored, `
		INSERT INTO lesson_completions (`+completionColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, lesson_id) DO NOTHING
		RETURNING `+completionColumns,
		c.ID, c.StudentID, c.LessonID, c.CourseID, c.CompletedAt)
	if err == nil {
		return stored, true, nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return learning.LessonCompletion{}, false, errors.Wrap(err, "inserting lesson completion")
	}

	err = repo.exec.GetContext(ctx, &stored,
		"SELECT "+completionColumns+" FROM lesson_completions WHERE student_id = $1 AND lesson_id = $2",
		c.StudentID, c.LessonID)
	if err != nil {
		return learning.LessonCompletion{}, false, errors.Wrap(err, "getting lesson completion")
	}
	return stored, false, nil
}

func (repo learningRepository) UncompleteLesson(ctx context.Context, studentID, lessonID string) error {
	_, err := repo.exec.ExecContext(ctx,
		"DELETE FROM lesson_completions WHERE student_id = $1 AND lesson_id = $2", studentID, lessonID)
	return errors.Wrap(err, "deleting lesson completion")
}

func (repo learningRepository) CountAttempts(ctx context.Context, studentID, quizID string, exec ...core.DBExecutor) (int, error) {
	ex := repo.getExec(exec)
	// serializes the attempts of a student within the transaction
	if _, err := ex.ExecContext(ctx, "SELECT 1 FROM students WHERE id = $1 FOR UPDATE", studentID); err != nil {
		return 0, errors.Wrap(err, "locking student")
	}
	var n int
	err := ex.GetContext(ctx, &n,
		"SELECT COALESCE(MAX(attempt_number), 0) FROM quiz_attempts WHERE student_id = $1 AND quiz_id = $2", studentID, quizID)
	if err != nil {
		return 0, errors.Wrap(err, "counting attempts")
	}
	return n, nil
}

func (repo learningRepository) CreateAttempt(ctx context.Context, a learning.QuizAttempt, exec ...core.DBExecutor) (learning.QuizAttempt, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO quiz_attempts ("+attemptColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		a.ID, a.StudentID, a.QuizID, a.CourseID, a.Answers, a.Score, a.MaxScore, a.Passed, a.AttemptNumber, a.AttemptedAt)
	if err != nil {
		return learning.QuizAttempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo learningRepository) QueryAttempts(ctx context.Context, quizID string, filter learning.AttemptFilter) ([]learning.QuizAttempt, error) {
	attempts := make([]learning.QuizAttempt, 0)
	w := where{}
	w.add("quiz_id = ?", quizID)
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return attempts, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.SchoolID != "" {
		w.add("student_id IN (SELECT id FROM students WHERE school_id = ?)", filter.SchoolID)
	}
	if filter.TrainerID != "" {
		w.add(`student_id IN (
			SELECT bs.student_id FROM batch_students bs
			JOIN batch_trainers bt ON bt.batch_id = bs.batch_id
			WHERE bt.trainer_id = ?)`, filter.TrainerID)
	}

	q := "SELECT " + attemptColumns + " FROM quiz_attempts" + w.String() + " ORDER BY attempted_at DESC, attempt_number DESC"
	if err := repo.exec.SelectContext(ctx, &attempts, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return attempts, nil
}
