package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/somesha/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) QueryAssignments(_ context.Context, schoolID string, filter assignment.QueryFilter) ([]assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]assignment.Assignment, 0)
	for _, a := range repo.db.assignments {
		if a.SchoolID != schoolID || (filter.BatchID != "" && a.BatchID != filter.BatchID) {
			continue
		}
		if filter.CourseID != "" && a.CourseID.String != filter.CourseID {
			continue
		}
		if filter.TrainerID != "" && !repo.db.batchTrainers[a.BatchID][filter.TrainerID] {
			continue
		}
		if filter.StudentID != "" && !repo.db.batchStudents[a.BatchID][filter.StudentID] {
			continue
		}
		assignments = append(assignments, *a)
	}
	// latest due first, undated last
	sort.Slice(assignments, func(i, j int) bool {
		ai, aj := assignments[i], assignments[j]
		if ai.DueAt.Valid != aj.DueAt.Valid {
			return ai.DueAt.Valid
		}
		if !ai.DueAt.Time.Equal(aj.DueAt.Time) {
			return ai.DueAt.Time.After(aj.DueAt.Time)
		}
		return ai.CreatedAt.After(aj.CreatedAt)
	})
	return assignments, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, schoolID, id string) (assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if a, ok := repo.db.assignments[id]; ok && a.SchoolID == schoolID {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if orig, ok := repo.db.assignments[a.ID]; !ok || orig.SchoolID != a.SchoolID {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, schoolID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if a, ok := repo.db.assignments[id]; !ok || a.SchoolID != schoolID {
		return assignment.ErrNotFound
	}
	delete(repo.db.assignments, id)
	for sid, s := range repo.db.submissions {
		if s.AssignmentID == id {
			delete(repo.db.submissions, sid)
		}
	}
	return nil
}

func (repo *assignmentRepository) UpsertSubmission(_ context.Context, s assignment.Submission) (assignment.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, stored := range repo.db.submissions {
		if stored.AssignmentID == s.AssignmentID && stored.StudentID == s.StudentID {
			if stored.IsGraded() {
				return assignment.Submission{}, assignment.ErrAlreadyGraded
			}
			stored.Content = s.Content
			stored.AttachmentURL = s.AttachmentURL
			stored.SubmittedAt = s.SubmittedAt
			return *stored, nil
		}
	}
	repo.db.submissions[s.ID] = &s
	return s, nil
}

func (repo *assignmentRepository) QuerySubmissions(_ context.Context, assignmentID, studentID string) ([]assignment.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	subs := make([]assignment.Submission, 0)
	for _, s := range repo.db.submissions {
		if s.AssignmentID == assignmentID && (studentID == "" || s.StudentID == studentID) {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo *assignmentRepository) GetSubmission(_ context.Context, id string) (assignment.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if s, ok := repo.db.submissions[id]; ok {
		return *s, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) GetStudentSubmission(_ context.Context, assignmentID, studentID string) (assignment.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, s := range repo.db.submissions {
		if s.AssignmentID == assignmentID && s.StudentID == studentID {
			return *s, nil
		}
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) GradeSubmission(_ context.Context, s assignment.Submission) (assignment.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	stored, ok := repo.db.submissions[s.ID]
	if !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	stored.Points, stored.Feedback, stored.GradedAt, stored.GradedBy = s.Points, s.Feedback, s.GradedAt, s.GradedBy
	return *stored, nil
}
