package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

type fakeRepo struct {
	scope       Scope
	enrollments []Enrollment
	courses     []LevelCourse
	completions []Completion
	attempts    []Attempt
	assignments []AssignmentRef
	submissions []SubmissionRef
}

func (r *fakeRepo) QueryEnrollments(_ context.Context, scope Scope) ([]Enrollment, error) {
	r.scope = scope
	return r.enrollments, nil
}

func (r *fakeRepo) QueryLevelCourses(_ context.Context, levelIDs []string) ([]LevelCourse, error) {
	var lcs []LevelCourse
	for _, lc := range r.courses {
		for _, id := range levelIDs {
			if lc.LevelID == id {
				lcs = append(lcs, lc)
			}
		}
	}
	return lcs, nil
}

func (r *fakeRepo) QueryCompletions(context.Context, []string) ([]Completion, error) {
	return r.completions, nil
}

func (r *fakeRepo) QueryAttempts(context.Context, []string) ([]Attempt, error) {
	return r.attempts, nil
}

func (r *fakeRepo) QueryAssignments(context.Context, []string) ([]AssignmentRef, error) {
	return r.assignments, nil
}

func (r *fakeRepo) QuerySubmissions(context.Context, []string) ([]SubmissionRef, error) {
	return r.submissions, nil
}

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func TestService_Summary(t *testing.T) {
	repo := &fakeRepo{
		enrollments: []Enrollment{
			{BatchID: "b1", BatchName: "Morning", LevelID: null.StringFrom("l1"), StudentID: "ann", StudentName: "Ann", StudentEmail: "ann@test.cd"},
			{BatchID: "b2", BatchName: "Weekend", LevelID: null.StringFrom("l2"), StudentID: "ann", StudentName: "Ann", StudentEmail: "ann@test.cd"},
			{BatchID: "b1", BatchName: "Morning", LevelID: null.StringFrom("l1"), StudentID: "sam", StudentName: "Sam", StudentEmail: "sam@test.cd"},
		},
		courses: []LevelCourse{
			{LevelID: "l1", CourseID: "algebra", Title: "Algebra", Position: 1, Lessons: 4, Quizzes: 2},
			{LevelID: "l1", CourseID: "biology", Title: "Biology", Position: 2, Lessons: 2},
			{LevelID: "l2", CourseID: "algebra", Title: "Algebra", Position: 1, Lessons: 4, Quizzes: 2},
		},
		completions: []Completion{
			{StudentID: "ann", CourseID: "algebra", CompletedAt: at(1, 10)},
			{StudentID: "ann", CourseID: "algebra", CompletedAt: at(12, 10)},
			{StudentID: "ann", CourseID: "biology", CompletedAt: at(12, 11)},
		},
		attempts: []Attempt{
			{StudentID: "ann", QuizID: "q1", CourseID: "algebra", Score: 1, MaxScore: 2, Passed: true, AttemptedAt: at(5, 10)},
			{StudentID: "ann", QuizID: "q1", CourseID: "algebra", Score: 2, MaxScore: 2, Passed: true, AttemptedAt: at(6, 10)},
			{StudentID: "ann", QuizID: "q2", CourseID: "algebra", Score: 0, MaxScore: 3, AttemptedAt: at(6, 11)},
		},
		assignments: []AssignmentRef{
			{ID: "a1", BatchID: "b1", CourseID: null.StringFrom("algebra"), MaxPoints: 10},
			{ID: "a2", BatchID: "b2", MaxPoints: 20},
		},
		submissions: []SubmissionRef{
			{AssignmentID: "a1", StudentID: "ann", SubmittedAt: at(13, 9), Points: null.IntFrom(8)},
			{AssignmentID: "a2", StudentID: "ann", SubmittedAt: at(10, 9)},
			{AssignmentID: "a1", StudentID: "sam", SubmittedAt: at(11, 10), Points: null.IntFrom(5)},
		},
	}
	svc := NewService(repo)
	svc.clock = func() time.Time { return at(13, 12) } // a Wednesday

	sum, err := svc.Summary(context.Background(), Scope{SchoolID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, at(13, 12), sum.GeneratedAt)
	assert.Equal(t, at(11, 0), sum.WeekStart)
	assert.Equal(t, Totals{
		Students:                 2,
		Batches:                  2,
		Courses:                  2,
		LessonsCompleted:         3,
		LessonsCompletedThisWeek: 2,
		QuizzesPassed:            1,
		AssignmentsSubmitted:     3,
		AverageCompletion:        25,
		AverageQuizScore:         null.Float64From(50),
		AverageGrade:             null.Float64From(65),
	}, sum.Totals)

	assert.Equal(t, []BatchSummary{
		{ID: "b1", Name: "Morning", Students: 2, AverageCompletion: 25, AverageQuizScore: null.Float64From(50), AverageGrade: null.Float64From(65)},
		{ID: "b2", Name: "Weekend", Students: 1, AverageCompletion: 50, AverageQuizScore: null.Float64From(50), AverageGrade: null.Float64From(80)},
	}, sum.Batches)

	require.Len(t, sum.Students, 2)
	assert.Equal(t, StudentProgress{
		ID:                       "ann",
		Name:                     "Ann",
		Email:                    "ann@test.cd",
		BatchIDs:                 []string{"b1", "b2"},
		LessonsCompleted:         3,
		LessonsTotal:             6,
		CompletionPercent:        50,
		QuizzesPassed:            1,
		QuizzesTotal:             2,
		AverageQuizScore:         null.Float64From(50),
		AssignmentsSubmitted:     2,
		AssignmentsTotal:         2,
		AverageGrade:             null.Float64From(80),
		LessonsCompletedThisWeek: 2,
		LastActivity:             null.TimeFrom(at(13, 9)),
		Courses: []CourseProgress{
			{
				CourseID: "algebra", Title: "Algebra",
				LessonsCompleted: 2, LessonsTotal: 4, CompletionPercent: 50,
				QuizzesPassed: 1, QuizzesTotal: 2, BestQuizScore: null.Float64From(100),
				AssignmentsSubmitted: 1, AssignmentsTotal: 1, AverageGrade: null.Float64From(80),
			},
			{CourseID: "biology", Title: "Biology", LessonsCompleted: 1, LessonsTotal: 2, CompletionPercent: 50},
		},
	}, sum.Students[0])

	sam := sum.Students[1]
	assert.Equal(t, "sam", sam.ID)
	assert.Equal(t, 0.0, sam.CompletionPercent)
	assert.False(t, sam.AverageQuizScore.Valid)
	assert.Equal(t, null.Float64From(50), sam.AverageGrade)
	assert.Equal(t, 1, sam.AssignmentsTotal)
	assert.Len(t, sam.Courses, 2)
}

func TestService_Summary_empty(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	scope := Scope{SchoolID: "s1", TrainerID: "t1"}
	sum, err := svc.Summary(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, scope, repo.scope)
	assert.Equal(t, Totals{}, sum.Totals)
	assert.Equal(t, []BatchSummary{}, sum.Batches)
	assert.Equal(t, []StudentProgress{}, sum.Students)
}

func TestScopeFor(t *testing.T) {
	coordinator := member.Actor{Principal: member.Principal{OrgRole: member.RoleCoordinator}, SchoolID: "s1", CoordinatorID: "c1"}
	trainer := member.Actor{Principal: member.Principal{OrgRole: member.RoleTrainer}, SchoolID: "s1", TrainerID: "t1"}
	student := member.Actor{Principal: member.Principal{OrgRole: member.RoleStudent}, SchoolID: "s1", StudentID: "st1"}
	unlinked := member.Actor{Principal: member.Principal{OrgRole: member.RoleStudent}, SchoolID: "s1"}

	tests := []struct {
		name    string
		actor   member.Actor
		query   Query
		want    Scope
		wantErr error
	}{
		{name: "Coordinator", actor: coordinator, query: Query{BatchID: "b1"}, want: Scope{SchoolID: "s1", BatchID: "b1"}},
		{name: "Trainer", actor: trainer, query: Query{StudentID: "st2"}, want: Scope{SchoolID: "s1", StudentID: "st2", TrainerID: "t1"}},
		{name: "Student", actor: student, want: Scope{SchoolID: "s1", StudentID: "st1"}},
		{name: "Student asking for self", actor: student, query: Query{StudentID: "st1"}, want: Scope{SchoolID: "s1", StudentID: "st1"}},
		{name: "Student asking for another", actor: student, query: Query{StudentID: "st2"}, wantErr: core.ErrPermissionDenied},
		{name: "No role record", actor: unlinked, wantErr: core.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeFor(tt.actor, tt.query)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
