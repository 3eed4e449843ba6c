package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/progress"
)

type progressRepository struct {
	repository
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{repository{exec: exec}}
}

func (repo progressRepository) QueryEnrollments(ctx context.Context, scope progress.Scope) ([]progress.Enrollment, error) {
	rows := make([]progress.Enrollment, 0)
	w := where{}
	if scope.SchoolID != "" {
		w.add("b.school_id = ?", scope.SchoolID)
	}
	if scope.BatchID != "" {
		if !isUUID(scope.BatchID) {
			return rows, nil
		}
		w.add("b.id = ?", scope.BatchID)
	}
	if scope.StudentID != "" {
		if !isUUID(scope.StudentID) {
			return rows, nil
		}
		w.add("s.id = ?", scope.StudentID)
	}
	if scope.TrainerID != "" {
		w.add("b.id IN (SELECT batch_id FROM batch_trainers WHERE trainer_id = ?)", scope.TrainerID)
	}

	q := `
		SELECT b.id AS batch_id, b.name AS batch_name, b.level_id,
			s.id AS student_id, s.name AS student_name, s.email AS student_email
		FROM batch_students bs
		JOIN batches b ON b.id = bs.batch_id
		JOIN students s ON s.id = bs.student_id` + w.String() + `
		ORDER BY s.name, s.id, b.name`
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return rows, nil
}

func (repo progressRepository) QueryLevelCourses(ctx context.Context, levelIDs []string) ([]progress.LevelCourse, error) {
	rows := make([]progress.LevelCourse, 0)
	if len(levelIDs) == 0 {
		return rows, nil
	}
	err := repo.exec.SelectContext(ctx, &rows, `
		SELECT lc.level_id, c.id AS course_id, c.title, lc.position,
			(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lessons,
			(SELECT COUNT(*) FROM quizzes q WHERE q.course_id = c.id) AS quizzes
		FROM level_courses lc JOIN courses c ON c.id = lc.course_id
		WHERE lc.level_id = ANY($1) AND c.is_published
		ORDER BY lc.level_id, lc.position`, pq.Array(levelIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying level courses")
	}
	return rows, nil
}

func (repo progressRepository) QueryCompletions(ctx context.Context, studentIDs []string) ([]progress.Completion, error) {
	rows := make([]progress.Completion, 0)
	if len(studentIDs) == 0 {
		return rows, nil
	}
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT student_id, course_id, completed_at FROM lesson_completions WHERE student_id = ANY($1)", pq.Array(studentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying completions")
	}
	return rows, nil
}

func (repo progressRepository) QueryAttempts(ctx context.Context, studentIDs []string) ([]progress.Attempt, error) {
	rows := make([]progress.Attempt, 0)
	if len(studentIDs) == 0 {
		return rows, nil
	}
	err := repo.exec.SelectContext(ctx, &rows, `
		SELECT student_id, quiz_id, course_id, score, max_score, passed, attempted_at
		FROM quiz_attempts WHERE student_id = ANY($1)`, pq.Array(studentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return rows, nil
}

func (repo progressRepository) QueryAssignments(ctx context.Context, batchIDs []string) ([]progress.AssignmentRef, error) {
	rows := make([]progress.AssignmentRef, 0)
	if len(batchIDs) == 0 {
		return rows, nil
	}
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT id, batch_id, course_id, max_points FROM assignments WHERE batch_id = ANY($1)", pq.Array(batchIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return rows, nil
}

func (repo progressRepository) QuerySubmissions(ctx context.Context, studentIDs []string) ([]progress.SubmissionRef, error) {
	rows := make([]progress.SubmissionRef, 0)
	if len(studentIDs) == 0 {
		return rows, nil
	}
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT assignment_id, student_id, submitted_at, points FROM submissions WHERE student_id = ANY($1)", pq.Array(studentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return rows, nil
}
