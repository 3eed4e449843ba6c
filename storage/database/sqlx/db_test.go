package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/assignment"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/learning"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
	"github.com/trezcool/somesha/core/upload"
)

const (
	schoolID  = "0b7c7c1e-52a3-4bcb-9a4d-1f1e3f7c2a11"
	trainerID = "9d2a43b4-1c1f-4e47-8d1c-7c41b5d0f0a2"
	studentID = "5f0f7a9e-6e0b-4f0c-9a1e-2b3c4d5e6f70"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func q(query string) string { return regexp.QuoteMeta(query) }

func TestWhere(t *testing.T) {
	w := where{}
	assert.Equal(t, "", w.String())

	w.add("school_id = ?", schoolID)
	w.search("", "name")
	w.search("ann", "name", "email")
	assert.Equal(t, " WHERE (school_id = ?) AND (name ILIKE ? OR email ILIKE ?)", w.String())
	assert.Equal(t, []interface{}{schoolID, "%ann%", "%ann%"}, w.args)
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"b"}, missing([]string{"a", "b", "c"}, []string{"c", "a"}))
	assert.Nil(t, missing([]string{"a"}, []string{"a"}))
}

func TestMemberLookup(t *testing.T) {
	tests := []struct {
		name   string
		lookup member.Lookup
		ok     bool
		cond   string
	}{
		{"id", member.Lookup{ID: trainerID, Email: "x@y.z"}, true, "(id = ?)"},
		{"invalid id", member.Lookup{ID: "nope"}, false, ""},
		{"user id", member.Lookup{UserID: "user_1"}, true, "(user_id = ?)"},
		{"email", member.Lookup{Email: "x@y.z"}, true, "(email = ?)"},
		{"empty", member.Lookup{}, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, ok := memberLookup(schoolID, tc.lookup)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.cond, w.conds[1])
			}
		})
	}
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "s.id, s.name", qualify("s", "id, name"))
}

func TestSchoolRepository_CreateSchool_uniqueViolations(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSchoolRepository(db)

	mock.ExpectExec(q("INSERT INTO schools")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "schools_slug_key"})
	_, err := repo.CreateSchool(context.Background(), school.School{ID: schoolID})
	var fe *core.ValidationError
	require.True(t, errors.As(err, &fe))

	mock.ExpectExec(q("INSERT INTO schools")).WillReturnError(errors.New("boom"))
	_, err = repo.CreateSchool(context.Background(), school.School{ID: schoolID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting school")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepository_GetSchool(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSchoolRepository(db)
	ctx := context.Background()

	_, err := repo.GetSchool(ctx, school.GetFilter{ID: "not-a-uuid"})
	assert.Equal(t, school.ErrNotFound, err)

	now := time.Now()
	mock.ExpectQuery(q("FROM schools WHERE (org_id = $1)")).
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "slug", "is_active", "created_at", "updated_at"}).
			AddRow(schoolID, "org_1", "Green Hill", "green-hill", true, now, now))
	sch, err := repo.GetSchool(ctx, school.GetFilter{OrgID: "org_1"})
	require.NoError(t, err)
	assert.Equal(t, "green-hill", sch.Slug)

	mock.ExpectQuery(q("FROM schools WHERE (slug = $1)")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.GetSchool(ctx, school.GetFilter{Slug: "nope"})
	assert.Equal(t, school.ErrNotFound, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainerRepository_SetVerified(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTrainerRepository(db)
	ctx := context.Background()

	mock.ExpectExec(q("UPDATE trainers SET is_verified = $3")).
		WithArgs(trainerID, schoolID, true).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "trainers_one_verified_idx"})
	assert.Equal(t, trainer.ErrVerifiedExists, repo.SetVerified(ctx, schoolID, trainerID, true))

	mock.ExpectExec(q("UPDATE trainers SET is_verified = $3")).
		WithArgs(trainerID, schoolID, false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, trainer.ErrNotFound, repo.SetVerified(ctx, schoolID, trainerID, false))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainerRepository_LevelIDs(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTrainerRepository(db)

	mock.ExpectQuery(q("FROM trainer_levels tl")).
		WillReturnRows(sqlmock.NewRows([]string{"trainer_id", "level_id"}).
			AddRow(trainerID, "l1").
			AddRow(trainerID, "l2"))
	levels, err := repo.LevelIDs(context.Background(), trainerID)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, levels[trainerID])

	unknown, err := repo.MissingLevels(context.Background(), []string{"bad"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, unknown)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainerRepository_QueryTrainers_invalidLevel(t *testing.T) {
	db, mock := newMock(t)
	trainers, err := NewTrainerRepository(db).QueryTrainers(context.Background(), schoolID, trainer.QueryFilter{LevelID: "x"}, nil)
	require.NoError(t, err)
	assert.Empty(t, trainers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepository_QueryPendingSyncs(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStudentRepository(db)
	now := time.Now()

	mock.ExpectQuery(q("FROM students st JOIN schools sc ON sc.id = st.school_id")).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "email", "sync_status", "created_at", "updated_at", "org_id"}).
			AddRow(studentID, schoolID, "Ann", "ann@school.test", student.SyncFailed, now, now, "org_1"))
	pending, err := repo.QueryPendingSyncs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "org_1", pending[0].OrgID)
	assert.Equal(t, student.SyncFailed, pending[0].SyncStatus)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepository_QueryStudents_trainerScope(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`(?s)FROM students WHERE \(school_id = \$1\) AND \(name ILIKE \$2 OR email ILIKE \$3 OR roll_number ILIKE \$4\) AND \(id IN \(.*bt.trainer_id = \$5\)\) ORDER BY name ASC`).
		WithArgs(schoolID, "%an%", "%an%", "%an%", trainerID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	students, err := repo.QueryStudents(context.Background(), schoolID, student.QueryFilter{Search: "an", TrainerID: trainerID}, nil)
	require.NoError(t, err)
	assert.Empty(t, students)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchService_Create_transaction(t *testing.T) {
	db, mock := newMock(t)
	svc := batch.NewService(NewBatchRepository(db), core.NewSQLTransactor(db))
	nb := batch.NewBatch{Name: "Morning", TrainerIDs: []string{trainerID}}

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO batches")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("DELETE FROM batch_trainers")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO batch_trainers")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("DELETE FROM batch_students")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		b, err := svc.Create(context.Background(), schoolID, nb)
		require.NoError(t, err)
		assert.Equal(t, []string{trainerID}, b.TrainerIDs)
		assert.Equal(t, []string{}, b.StudentIDs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO batches")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("DELETE FROM batch_trainers")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO batch_trainers")).
			WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
		mock.ExpectRollback()

		_, err := svc.Create(context.Background(), schoolID, nb)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "adding trainers")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBatchRepository_ForeignStudents(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBatchRepository(db)
	other := "6a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"

	mock.ExpectQuery(q("SELECT id FROM students WHERE school_id = $1 AND id = ANY($2)")).
		WithArgs(schoolID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(studentID))
	foreign, err := repo.ForeignStudents(context.Background(), schoolID, []string{studentID, other})
	require.NoError(t, err)
	assert.Equal(t, []string{other}, foreign)

	foreign, err = repo.ForeignStudents(context.Background(), schoolID, nil)
	require.NoError(t, err)
	assert.Empty(t, foreign)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningRepository_CompleteLesson(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLearningRepository(db)
	now := time.Now()
	c := learning.LessonCompletion{ID: "c2", StudentID: studentID, LessonID: "l1", CourseID: "c1", CompletedAt: now}
	cols := []string{"id", "student_id", "lesson_id", "course_id", "completed_at"}

	// first completion
	mock.ExpectQuery(q("ON CONFLICT (student_id, lesson_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c2", studentID, "l1", "c1", now))
	stored, created, err := repo.CompleteLesson(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "c2", stored.ID)

	// already completed
	mock.ExpectQuery(q("ON CONFLICT (student_id, lesson_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(q("FROM lesson_completions WHERE student_id = $1 AND lesson_id = $2")).
		WithArgs(studentID, "l1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c0", studentID, "l1", "c1", now.Add(-time.Hour)))
	stored, created, err = repo.CompleteLesson(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c0", stored.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepository_GetUpload_notFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM uploads WHERE object_key = $1")).
		WithArgs("platform/image/x.png").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := NewUploadRepository(db).GetUpload(context.Background(), "platform/image/x.png")
	assert.Equal(t, upload.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepository_UpsertSubmission(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	sub := assignment.Submission{
		ID:           "3c6e1d0a-7b8f-4d2e-9a1b-0c2d3e4f5a6b",
		AssignmentID: "7e8f9a0b-1c2d-4e3f-8a4b-5c6d7e8f9a0b",
		StudentID:    studentID,
		Content:      "my essay",
		SubmittedAt:  now,
	}

	mock.ExpectQuery(q("ON CONFLICT (assignment_id, student_id) DO UPDATE")+`.*`+q("WHERE submissions.graded_at IS NULL")).
		WithArgs(sub.ID, sub.AssignmentID, sub.StudentID, sub.Content, sub.AttachmentURL, sub.SubmittedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "content", "submitted_at"}).
			AddRow(sub.ID, sub.AssignmentID, sub.StudentID, sub.Content, now))
	stored, err := repo.UpsertSubmission(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)

	// graded in between: the conflicting row is left untouched
	mock.ExpectQuery(q("WHERE submissions.graded_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.UpsertSubmission(ctx, sub)
	assert.Equal(t, assignment.ErrAlreadyGraded, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningRepository_attemptNumbering(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLearningRepository(db)
	tx := core.NewSQLTransactor(db)
	ctx := context.Background()
	quizID := "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT 1 FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs(studentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT COALESCE(MAX(attempt_number), 0) FROM quiz_attempts")).
		WithArgs(studentID, quizID).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectExec(q("INSERT INTO quiz_attempts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var created learning.QuizAttempt
	err := tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		n, err := repo.CountAttempts(ctx, studentID, quizID, exec)
		if err != nil {
			return err
		}
		created, err = repo.CreateAttempt(ctx, learning.QuizAttempt{
			ID: "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e", StudentID: studentID, QuizID: quizID, AttemptNumber: n + 1,
		}, exec)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created.AttemptNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
