package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/course"
)

const (
	courseColumns = "id, title, slug, description, thumbnail_url, is_published, created_at, updated_at"
	lessonColumns = "id, course_id, position, title, content, video_url, attachment_url, duration_minutes, created_at, updated_at"
	quizColumns   = "id, course_id, lesson_id, title, pass_percent, questions, created_at, updated_at"
)

var courseOrdering = map[string]string{
	"title":     "title",
	"slug":      "slug",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{repository{exec: exec}}
}

func (repo courseRepository) CheckSlugUniqueness(ctx context.Context, slug string, excluded ...course.Course) error {
	ids := make([]string, 0, len(excluded))
	for _, c := range excluded {
		ids = append(ids, c.ID)
	}
	w := where{}
	w.add("slug = ?", slug)
	excludedIDs(&w, "id", ids)

	var exists bool
	q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM courses" + w.String() + ")")
	if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
		return errors.Wrap(err, "checking course uniqueness")
	}
	if exists {
		return course.ErrSlugExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO courses ("+courseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		c.ID, c.Title, c.Slug, c.Description, c.ThumbnailURL, c.IsPublished, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "courses_slug_key") {
			return course.Course{}, core.NewFieldError("slug", course.ErrSlugExists)
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	w := where{}
	w.search(filter.Search, "title", "description")
	if filter.Published != nil {
		w.add("is_published = ?", *filter.Published)
	}
	if filter.LevelID != "" {
		if !isUUID(filter.LevelID) {
			return courses, nil
		}
		w.add("id IN (SELECT course_id FROM level_courses WHERE level_id = ?)", filter.LevelID)
	}
	if filter.StudentID != "" {
		w.add(`id IN (
			SELECT lc.course_id FROM level_courses lc
			JOIN batches b ON b.level_id = lc.level_id
			JOIN batch_students bs ON bs.batch_id = b.id
			WHERE bs.student_id = ?)`, filter.StudentID)
	}
	if filter.TrainerID != "" {
		w.add(`id IN (
			SELECT lc.course_id FROM level_courses lc
			WHERE lc.level_id IN (SELECT level_id FROM trainer_levels WHERE trainer_id = ?)
			OR lc.level_id IN (
				SELECT b.level_id FROM batches b JOIN batch_trainers bt ON bt.batch_id = b.id
				WHERE bt.trainer_id = ?))`, filter.TrainerID, filter.TrainerID)
	}

	q := "SELECT " + courseColumns + " FROM courses" + w.String() + core.OrderBy(ordering, courseOrdering, "title ASC")
	if err := repo.exec.SelectContext(ctx, &courses, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var c course.Course
	if err := repo.exec.GetContext(ctx, &c, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return c, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE courses
		SET title = $2, slug = $3, description = $4, thumbnail_url = $5, is_published = $6, updated_at = $7
		WHERE id = $1`,
		c.ID, c.Title, c.Slug, c.Description, c.ThumbnailURL, c.IsPublished, c.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "courses_slug_key") {
			return course.Course{}, core.NewFieldError("slug", course.ErrSlugExists)
		}
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if err = expectRows(res, course.ErrNotFound); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return expectRows(res, course.ErrNotFound)
}

func (repo courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO lessons ("+lessonColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		l.ID, l.CourseID, l.Position, l.Title, l.Content, l.VideoURL, l.AttachmentURL, l.DurationMinutes, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if isViolation(err, pqForeignKeyViolation) {
			return course.Lesson{}, course.ErrNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	err := repo.exec.SelectContext(ctx, &lessons,
		"SELECT "+lessonColumns+" FROM lessons WHERE course_id = $1 ORDER BY position", courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return lessons, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if !isUUID(id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var l course.Lesson
	if err := repo.getExec(exec).GetContext(ctx, &l, "SELECT "+lessonColumns+" FROM lessons WHERE id = $1", id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "getting lesson")
	}
	return l, nil
}

func (repo courseRepository) UpdateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE lessons
		SET position = $2, title = $3, content = $4, video_url = $5, attachment_url = $6, duration_minutes = $7, updated_at = $8
		WHERE id = $1`,
		l.ID, l.Position, l.Title, l.Content, l.VideoURL, l.AttachmentURL, l.DurationMinutes, l.UpdatedAt)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if err = expectRows(res, course.ErrLessonNotFound); err != nil {
		return course.Lesson{}, err
	}
	return l, nil
}

func (repo courseRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM lessons WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return expectRows(res, course.ErrLessonNotFound)
}

func (repo courseRepository) ShiftLessons(ctx context.Context, courseID string, from, delta int, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE lessons SET position = position + $3 WHERE course_id = $1 AND position >= $2", courseID, from, delta)
	return errors.Wrap(err, "shifting lessons")
}

func (repo courseRepository) CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	var n int
	if err := repo.getExec(exec).GetContext(ctx, &n, "SELECT COUNT(*) FROM lessons WHERE course_id = $1", courseID); err != nil {
		return 0, errors.Wrap(err, "counting lessons")
	}
	return n, nil
}

func (repo courseRepository) CreateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO quizzes ("+quizColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		q.ID, q.CourseID, q.LessonID, q.Title, q.PassPercent, q.Questions, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		if isViolation(err, pqForeignKeyViolation) {
			return course.Quiz{}, course.ErrNotFound
		}
		return course.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return q, nil
}

func (repo courseRepository) QueryQuizzes(ctx context.Context, courseID string) ([]course.Quiz, error) {
	quizzes := make([]course.Quiz, 0)
	err := repo.exec.SelectContext(ctx, &quizzes,
		"SELECT "+quizColumns+" FROM quizzes WHERE course_id = $1 ORDER BY created_at", courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	return quizzes, nil
}

func (repo courseRepository) GetQuiz(ctx context.Context, id string) (course.Quiz, error) {
	if !isUUID(id) {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	var q course.Quiz
	if err := repo.exec.GetContext(ctx, &q, "SELECT "+quizColumns+" FROM quizzes WHERE id = $1", id); err != nil {
		return course.Quiz{}, trapNoRowsErr(err, course.ErrQuizNotFound, "getting quiz")
	}
	return q, nil
}

func (repo courseRepository) UpdateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE quizzes SET lesson_id = $2, title = $3, pass_percent = $4, questions = $5, updated_at = $6
		WHERE id = $1`,
		q.ID, q.LessonID, q.Title, q.PassPercent, q.Questions, q.UpdatedAt)
	if err != nil {
		return course.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if err = expectRows(res, course.ErrQuizNotFound); err != nil {
		return course.Quiz{}, err
	}
	return q, nil
}

func (repo courseRepository) DeleteQuiz(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM quizzes WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return expectRows(res, course.ErrQuizNotFound)
}
