package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/assignment"
)

const (
	assignmentColumns = "id, school_id, batch_id, course_id, created_by, title, instructions, attachment_url, due_at, max_points, created_at, updated_at"
	submissionColumns = "id, assignment_id, student_id, content, attachment_url, submitted_at, points, feedback, graded_at, graded_by"
)

type assignmentRepository struct {
	repository
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(exec core.DBExecutor) *assignmentRepository {
	return &assignmentRepository{repository{exec: exec}}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO assignments ("+assignmentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		a.ID, a.SchoolID, a.BatchID, a.CourseID, a.CreatedBy, a.Title, a.Instructions, a.AttachmentURL, a.DueAt,
		a.MaxPoints, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, schoolID string, filter assignment.QueryFilter) ([]assignment.Assignment, error) {
	assignments := make([]assignment.Assignment, 0)
	w := where{}
	w.add("school_id = ?", schoolID)
	if filter.BatchID != "" {
		if !isUUID(filter.BatchID) {
			return assignments, nil
		}
		w.add("batch_id = ?", filter.BatchID)
	}
	if filter.CourseID != "" {
		if !isUUID(filter.CourseID) {
			return assignments, nil
		}
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.TrainerID != "" {
		w.add("batch_id IN (SELECT batch_id FROM batch_trainers WHERE trainer_id = ?)", filter.TrainerID)
	}
	if filter.StudentID != "" {
		w.add("batch_id IN (SELECT batch_id FROM batch_students WHERE student_id = ?)", filter.StudentID)
	}

	q := "SELECT " + assignmentColumns + " FROM assignments" + w.String() + " ORDER BY due_at DESC NULLS LAST, created_at DESC"
	if err := repo.exec.SelectContext(ctx, &assignments, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return assignments, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, schoolID, id string) (assignment.Assignment, error) {
	if !isUUID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var a assignment.Assignment
	err := repo.exec.GetContext(ctx, &a,
		"SELECT "+assignmentColumns+" FROM assignments WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "getting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE assignments
		SET course_id = $3, title = $4, instructions = $5, attachment_url = $6, due_at = $7, max_points = $8, updated_at = $9
		WHERE id = $1 AND school_id = $2`,
		a.ID, a.SchoolID, a.CourseID, a.Title, a.Instructions, a.AttachmentURL, a.DueAt, a.MaxPoints, a.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if err = expectRows(res, assignment.ErrNotFound); err != nil {
		return assignment.Assignment{}, err
	}
	return a, nil
}

func (repo assignmentRepository) DeleteAssignment(ctx context.Context, schoolID, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM assignments WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return expectRows(res, assignment.ErrNotFound)
}

func (repo assignmentRepository) UpsertSubmission(ctx context.Context, s assignment.Submission) (assignment.Submission, error) {
	var stored assignment.Submission
	err := repo.exec.GetContext(ctx, &stored, `
		INSERT INTO submissions (id, assignment_id, student_id, content, attachment_url, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (assignment_id, student_id) DO UPDATE
		SET content = EXCLUDED.content, attachment_url = EXCLUDED.attachment_url, submitted_at = EXCLUDED.submitted_at
		WHERE submissions.graded_at IS NULL
		RETURNING `+submissionColumns,
		s.ID, s.AssignmentID, s.StudentID, s.Content, s.AttachmentURL, s.SubmittedAt)
	if err != nil {
		// the conflicting row was graded: nothing was updated
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrAlreadyGraded, "upserting submission")
	}
	return stored, nil
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID, studentID string) ([]assignment.Submission, error) {
	subs := make([]assignment.Submission, 0)
	w := where{}
	w.add("assignment_id = ?", assignmentID)
	if studentID != "" {
		w.add("student_id = ?", studentID)
	}
	q := "SELECT " + submissionColumns + " FROM submissions" + w.String() + " ORDER BY submitted_at"
	if err := repo.exec.SelectContext(ctx, &subs, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string) (assignment.Submission, error) {
	if !isUUID(id) {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	var s assignment.Submission
	if err := repo.exec.GetContext(ctx, &s, "SELECT "+submissionColumns+" FROM submissions WHERE id = $1", id); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "getting submission")
	}
	return s, nil
}

func (repo assignmentRepository) GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (assignment.Submission, error) {
	var s assignment.Submission
	err := repo.exec.GetContext(ctx, &s,
		"SELECT "+submissionColumns+" FROM submissions WHERE assignment_id = $1 AND student_id = $2", assignmentID, studentID)
	if err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "getting submission")
	}
	return s, nil
}

func (repo assignmentRepository) GradeSubmission(ctx context.Context, s assignment.Submission) (assignment.Submission, error) {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE submissions SET points = $2, feedback = $3, graded_at = $4, graded_by = $5 WHERE id = $1",
		s.ID, s.Points, s.Feedback, s.GradedAt, s.GradedBy)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "grading submission")
	}
	if err = expectRows(res, assignment.ErrSubmissionNotFound); err != nil {
		return assignment.Submission{}, err
	}
	return s, nil
}
