package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) QueryEnrollments(_ context.Context, scope progress.Scope) ([]progress.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]progress.Enrollment, 0)
	for batchID, students := range repo.db.batchStudents {
		b, ok := repo.db.batches[batchID]
		if !ok || (scope.SchoolID != "" && b.SchoolID != scope.SchoolID) || (scope.BatchID != "" && b.ID != scope.BatchID) {
			continue
		}
		if scope.TrainerID != "" && !repo.db.batchTrainers[batchID][scope.TrainerID] {
			continue
		}
		for studentID := range students {
			s, ok := repo.db.students[studentID]
			if !ok || (scope.StudentID != "" && s.ID != scope.StudentID) {
				continue
			}
			rows = append(rows, progress.Enrollment{
				BatchID:      b.ID,
				BatchName:    b.Name,
				LevelID:      b.LevelID,
				StudentID:    s.ID,
				StudentName:  s.Name,
				StudentEmail: s.Email,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		ri, rj := rows[i], rows[j]
		if ri.StudentName != rj.StudentName {
			return ri.StudentName < rj.StudentName
		}
		if ri.StudentID != rj.StudentID {
			return ri.StudentID < rj.StudentID
		}
		return ri.BatchName < rj.BatchName
	})
	return rows, nil
}

func (repo *progressRepository) QueryLevelCourses(_ context.Context, levelIDs []string) ([]progress.LevelCourse, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]progress.LevelCourse, 0)
	for _, levelID := range levelIDs {
		for pos, courseID := range repo.db.levelCourses[levelID] {
			c, ok := repo.db.courses[courseID]
			if !ok || !c.IsPublished {
				continue
			}
			row := progress.LevelCourse{LevelID: levelID, CourseID: c.ID, Title: c.Title, Position: pos + 1}
			for _, l := range repo.db.lessons {
				if l.CourseID == c.ID {
					row.Lessons++
				}
			}
			for _, q := range repo.db.quizzes {
				if q.CourseID == c.ID {
					row.Quizzes++
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (repo *progressRepository) QueryCompletions(_ context.Context, studentIDs []string) ([]progress.Completion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := newSet(studentIDs)
	rows := make([]progress.Completion, 0)
	for _, c := range repo.db.completions {
		if ids[c.StudentID] {
			rows = append(rows, progress.Completion{StudentID: c.StudentID, CourseID: c.CourseID, CompletedAt: c.CompletedAt})
		}
	}
	return rows, nil
}

func (repo *progressRepository) QueryAttempts(_ context.Context, studentIDs []string) ([]progress.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := newSet(studentIDs)
	rows := make([]progress.Attempt, 0)
	for _, a := range repo.db.attempts {
		if ids[a.StudentID] {
			rows = append(rows, progress.Attempt{
				StudentID:   a.StudentID,
				QuizID:      a.QuizID,
				CourseID:    a.CourseID,
				Score:       a.Score,
				MaxScore:    a.MaxScore,
				Passed:      a.Passed,
				AttemptedAt: a.AttemptedAt,
			})
		}
	}
	return rows, nil
}

func (repo *progressRepository) QueryAssignments(_ context.Context, batchIDs []string) ([]progress.AssignmentRef, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := newSet(batchIDs)
	rows := make([]progress.AssignmentRef, 0)
	for _, a := range repo.db.assignments {
		if ids[a.BatchID] {
			rows = append(rows, progress.AssignmentRef{ID: a.ID, BatchID: a.BatchID, CourseID: a.CourseID, MaxPoints: a.MaxPoints})
		}
	}
	return rows, nil
}

func (repo *progressRepository) QuerySubmissions(_ context.Context, studentIDs []string) ([]progress.SubmissionRef, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	ids := newSet(studentIDs)
	rows := make([]progress.SubmissionRef, 0)
	for _, s := range repo.db.submissions {
		if ids[s.StudentID] {
			rows = append(rows, progress.SubmissionRef{
				AssignmentID: s.AssignmentID,
				StudentID:    s.StudentID,
				SubmittedAt:  s.SubmittedAt,
				Points:       s.Points,
			})
		}
	}
	return rows, nil
}
