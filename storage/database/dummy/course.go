package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) checkSlug(slug string, excluded ...string) error {
	for _, c := range repo.db.courses {
		if c.Slug == slug && !isExcluded(c.ID, excluded) {
			return course.ErrSlugExists
		}
	}
	return nil
}

func (repo *courseRepository) CheckSlugUniqueness(_ context.Context, slug string, excluded ...course.Course) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := make([]string, 0, len(excluded))
	for _, c := range excluded {
		ids = append(ids, c.ID)
	}
	return repo.checkSlug(slug, ids...)
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.checkSlug(c.Slug); err != nil {
		return course.Course{}, core.NewFieldError("slug", err)
	}
	repo.db.courses[c.ID] = &c
	return c, nil
}

// levelsCourses returns the courses of the levels.
func (db *DB) levelsCourses(levelIDs set) set {
	ids := make(set)
	for levelID := range levelIDs {
		for _, id := range db.levelCourses[levelID] {
			ids[id] = true
		}
	}
	return ids
}

func (db *DB) studentCourses(studentID string) set {
	levels := make(set)
	for batchID, students := range db.batchStudents {
		if b, ok := db.batches[batchID]; ok && students[studentID] && b.LevelID.Valid {
			levels[b.LevelID.String] = true
		}
	}
	return db.levelsCourses(levels)
}

func (db *DB) trainerCourses(trainerID string) set {
	levels := make(set)
	for id := range db.trainerLevels[trainerID] {
		levels[id] = true
	}
	for batchID, trainers := range db.batchTrainers {
		if b, ok := db.batches[batchID]; ok && trainers[trainerID] && b.LevelID.Valid {
			levels[b.LevelID.String] = true
		}
	}
	return db.levelsCourses(levels)
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter, _ []core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var inLevel, reachable set
	if filter.LevelID != "" {
		inLevel = newSet(repo.db.levelCourses[filter.LevelID])
	}
	switch {
	case filter.StudentID != "":
		reachable = repo.db.studentCourses(filter.StudentID)
	case filter.TrainerID != "":
		reachable = repo.db.trainerCourses(filter.TrainerID)
	}

	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if !matches(filter.Search, c.Title, c.Description) {
			continue
		}
		if filter.Published != nil && c.IsPublished != *filter.Published {
			continue
		}
		if (inLevel != nil && !inLevel[c.ID]) || (reachable != nil && !reachable[c.ID]) {
			continue
		}
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Title < courses[j].Title })
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	if err := repo.checkSlug(c.Slug, c.ID); err != nil {
		return course.Course{}, core.NewFieldError("slug", err)
	}
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	for lid, l := range repo.db.lessons {
		if l.CourseID == id {
			delete(repo.db.lessons, lid)
		}
	}
	for qid, q := range repo.db.quizzes {
		if q.CourseID == id {
			delete(repo.db.quizzes, qid)
		}
	}
	for levelID, ids := range repo.db.levelCourses {
		kept := ids[:0:0]
		for _, cid := range ids {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		repo.db.levelCourses[levelID] = kept
	}
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	repo.db.lessons[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) UpdateLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.lessons[l.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	repo.db.lessons[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	delete(repo.db.lessons, id)
	for _, q := range repo.db.quizzes {
		if q.LessonID.String == id {
			q.LessonID.Valid, q.LessonID.String = false, ""
		}
	}
	return nil
}

func (repo *courseRepository) ShiftLessons(_ context.Context, courseID string, from, delta int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID && l.Position >= from {
			l.Position += delta
		}
	}
	return nil
}

func (repo *courseRepository) CountLessons(_ context.Context, courseID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	n := 0
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) CreateQuiz(_ context.Context, q course.Quiz) (course.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.courses[q.CourseID]; !ok {
		return course.Quiz{}, course.ErrNotFound
	}
	repo.db.quizzes[q.ID] = &q
	return q, nil
}

func (repo *courseRepository) QueryQuizzes(_ context.Context, courseID string) ([]course.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	quizzes := make([]course.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.CourseID == courseID {
			quizzes = append(quizzes, *q)
		}
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].CreatedAt.Before(quizzes[j].CreatedAt) })
	return quizzes, nil
}

func (repo *courseRepository) GetQuiz(_ context.Context, id string) (course.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if q, ok := repo.db.quizzes[id]; ok {
		return *q, nil
	}
	return course.Quiz{}, course.ErrQuizNotFound
}

func (repo *courseRepository) UpdateQuiz(_ context.Context, q course.Quiz) (course.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.quizzes[q.ID]; !ok {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	repo.db.quizzes[q.ID] = &q
	return q, nil
}

func (repo *courseRepository) DeleteQuiz(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.quizzes[id]; !ok {
		return course.ErrQuizNotFound
	}
	delete(repo.db.quizzes, id)
	return nil
}
