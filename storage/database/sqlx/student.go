package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/student"
)

const studentColumns = "id, school_id, user_id, name, email, phone, roll_number, grade, guardian_name, guardian_phone, " +
	"sync_status, sync_error, synced_at, created_at, updated_at"

var studentOrdering = map[string]string{
	"name":       "name",
	"email":      "email",
	"rollNumber": "roll_number",
	"syncStatus": "sync_status",
	"createdAt":  "created_at",
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repository{exec: exec}}
}

func (repo studentRepository) CheckEmailUniqueness(ctx context.Context, schoolID, email string, excluded ...student.Student) error {
	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}
	w := where{}
	w.add("school_id = ?", schoolID)
	w.add("email = ?", email)
	excludedIDs(&w, "id", ids)

	var exists bool
	q := repo.exec.Rebind("SELECT EXISTS (SELECT 1 FROM students" + w.String() + ")")
	if err := repo.exec.GetContext(ctx, &exists, q, w.args...); err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	if exists {
		return student.ErrEmailExists
	}
	return nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO students ("+studentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
		s.ID, s.SchoolID, s.UserID, s.Name, s.Email, s.Phone, s.RollNumber, s.Grade, s.GuardianName, s.GuardianPhone,
		s.SyncStatus, s.SyncError, s.SyncedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "students_school_id_email_key") {
			return student.Student{}, core.NewFieldError("email", student.ErrEmailExists)
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, schoolID string, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	students := make([]student.Student, 0)
	w := where{}
	w.add("school_id = ?", schoolID)
	w.search(filter.Search, "name", "email", "roll_number")
	if filter.SyncStatus != "" {
		w.add("sync_status = ?", filter.SyncStatus)
	}
	if filter.BatchID != "" {
		if !isUUID(filter.BatchID) {
			return students, nil
		}
		w.add("id IN (SELECT student_id FROM batch_students WHERE batch_id = ?)", filter.BatchID)
	}
	if filter.TrainerID != "" {
		w.add(`id IN (
			SELECT bs.student_id FROM batch_students bs
			JOIN batch_trainers bt ON bt.batch_id = bs.batch_id
			WHERE bt.trainer_id = ?)`, filter.TrainerID)
	}
	if filter.IDs != nil {
		if !areUUIDs(filter.IDs) {
			return students, nil
		}
		w.add("id = ANY(?)", pq.Array(filter.IDs))
	}

	q := "SELECT " + studentColumns + " FROM students" + w.String() + core.OrderBy(ordering, studentOrdering, "name ASC")
	if err := repo.exec.SelectContext(ctx, &students, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, schoolID string, lookup member.Lookup) (student.Student, error) {
	w, ok := memberLookup(schoolID, lookup)
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	var s student.Student
	q := repo.exec.Rebind("SELECT " + studentColumns + " FROM students" + w.String() + " LIMIT 1")
	if err := repo.exec.GetContext(ctx, &s, q, w.args...); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return s, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE students
		SET user_id = $3, name = $4, email = $5, phone = $6, roll_number = $7, grade = $8, guardian_name = $9,
			guardian_phone = $10, sync_status = $11, sync_error = $12, synced_at = $13, updated_at = $14
		WHERE id = $1 AND school_id = $2`,
		s.ID, s.SchoolID, s.UserID, s.Name, s.Email, s.Phone, s.RollNumber, s.Grade, s.GuardianName,
		s.GuardianPhone, s.SyncStatus, s.SyncError, s.SyncedAt, s.UpdatedAt)
	if err != nil {
		if isViolation(err, pqUniqueViolation, "students_school_id_email_key") {
			return student.Student{}, core.NewFieldError("email", student.ErrEmailExists)
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if err = expectRows(res, student.ErrNotFound); err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, schoolID, id string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM students WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return expectRows(res, student.ErrNotFound)
}

func (repo studentRepository) QueryPendingSyncs(ctx context.Context, limit int) ([]student.PendingSync, error) {
	pending := make([]student.PendingSync, 0)
	err := repo.exec.SelectContext(ctx, &pending, `
		SELECT `+qualify("st", studentColumns)+`, sc.org_id
		FROM students st JOIN schools sc ON sc.id = st.school_id
		WHERE st.sync_status = ANY($1) AND sc.is_active
		ORDER BY st.updated_at
		LIMIT $2`,
		pq.Array([]string{student.SyncPending, student.SyncFailed}), limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending syncs")
	}
	return pending, nil
}

func (repo studentRepository) BatchIDs(ctx context.Context, studentIDs ...string) (map[string][]string, error) {
	rows := make([]struct {
		StudentID string `db:"student_id"`
		BatchID   string `db:"batch_id"`
	}, 0)
	err := repo.exec.SelectContext(ctx, &rows, `
		SELECT bs.student_id, bs.batch_id
		FROM batch_students bs JOIN batches b ON b.id = bs.batch_id
		WHERE bs.student_id = ANY($1)
		ORDER BY b.name`, pq.Array(studentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying student batches")
	}
	batches := make(map[string][]string, len(studentIDs))
	for _, r := range rows {
		batches[r.StudentID] = append(batches[r.StudentID], r.BatchID)
	}
	return batches, nil
}
