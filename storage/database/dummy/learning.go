package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/learning"
)

type learningRepository struct {
	db *DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *DB) *learningRepository {
	return &learningRepository{db: db}
}

func (repo *learningRepository) CanAccessCourse(_ context.Context, studentID, courseID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.studentCourses(studentID)[courseID], nil
}

func (repo *learningRepository) CompleteLesson(_ context.Context, c learning.LessonCompletion) (learning.LessonCompletion, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, stored := range repo.db.completions {
		if stored.StudentID == c.StudentID && stored.LessonID == c.LessonID {
			return *stored, false, nil
		}
	}
	repo.db.completions[c.ID] = &c
	return c, true, nil
}

func (repo *learningRepository) UncompleteLesson(_ context.Context, studentID, lessonID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for id, c := range repo.db.completions {
		if c.StudentID == studentID && c.LessonID == lessonID {
			delete(repo.db.completions, id)
		}
	}
	return nil
}

func (repo *learningRepository) CountAttempts(_ context.Context, studentID, quizID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	n := 0
	for _, a := range repo.db.attempts {
		if a.StudentID == studentID && a.QuizID == quizID && a.AttemptNumber > n {
			n = a.AttemptNumber
		}
	}
	return n, nil
}

func (repo *learningRepository) CreateAttempt(_ context.Context, a learning.QuizAttempt, _ ...core.DBExecutor) (learning.QuizAttempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.attempts[a.ID] = &a
	return a, nil
}

func (repo *learningRepository) QueryAttempts(_ context.Context, quizID string, filter learning.AttemptFilter) ([]learning.QuizAttempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var scope set
	if filter.TrainerID != "" {
		scope = repo.db.trainerStudents(filter.TrainerID)
	}
	attempts := make([]learning.QuizAttempt, 0)
	for _, a := range repo.db.attempts {
		if a.QuizID != quizID || (filter.StudentID != "" && a.StudentID != filter.StudentID) {
			continue
		}
		if filter.SchoolID != "" {
			if s, ok := repo.db.students[a.StudentID]; !ok || s.SchoolID != filter.SchoolID {
				continue
			}
		}
		if scope != nil && !scope[a.StudentID] {
			continue
		}
		attempts = append(attempts, *a)
	}
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].AttemptedAt.Equal(attempts[j].AttemptedAt) {
			return attempts[i].AttemptedAt.After(attempts[j].AttemptedAt)
		}
		return attempts[i].AttemptNumber > attempts[j].AttemptNumber
	})
	return attempts, nil
}
