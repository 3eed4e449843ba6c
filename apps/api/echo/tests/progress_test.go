package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core/progress"
)

func Test_progressApi_summary(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	algebra := env.createCourse(t, "Algebra", true)
	numbers := env.addLesson(t, algebra, "Numbers")
	env.addLesson(t, algebra, "Fractions")
	quiz := env.addQuiz(t, algebra, "Numbers check", 1)
	lvl := env.createLevel(t, "Beginner", algebra)
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	bobP, _ := env.addTrainer(t, sch, "bob@greenhill.test", "Bob")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	_, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	b := env.createBatch(t, sch, "Morning", lvl.ID, []string{tom.ID}, []string{ann.ID, sam.ID})
	annToken := getToken(t, env, annP)

	req, rec := newAuthRequest(http.MethodPost, "/api/lessons/"+numbers.ID+"/complete", annToken)
	require.Equal(t, http.StatusCreated, env.serve(req, rec).Code, rec.Body.String())
	req, rec = newAuthRequest(http.MethodPost, "/api/quizzes/"+quiz.ID+"/attempts", annToken, []byte(`{"answers": [1]}`))
	require.Equal(t, http.StatusCreated, env.serve(req, rec).Code, rec.Body.String())

	summary := func(token, query string) progress.Summary {
		req, rec := newAuthRequest(http.MethodGet, "/api/progress/summary"+query, token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum progress.Summary
		unmarshal(t, rec, &sum)
		return sum
	}

	t.Run("Coordinator", func(t *testing.T) {
		sum := summary(getToken(t, env, coord), "")
		assert.Equal(t, 2, sum.Totals.Students)
		assert.Equal(t, 1, sum.Totals.Batches)
		assert.Equal(t, 1, sum.Totals.Courses)
		assert.Equal(t, 1, sum.Totals.LessonsCompleted)
		assert.Equal(t, 1, sum.Totals.QuizzesPassed)
		assert.Equal(t, 25.0, sum.Totals.AverageCompletion)
		assert.Equal(t, 100.0, sum.Totals.AverageQuizScore.Float64)
		assert.False(t, sum.Totals.AverageGrade.Valid)

		require.Len(t, sum.Batches, 1)
		assert.Equal(t, b.ID, sum.Batches[0].ID)
		assert.Equal(t, 2, sum.Batches[0].Students)

		require.Len(t, sum.Students, 2)
		got := sum.Students[0]
		assert.Equal(t, ann.ID, got.ID)
		assert.Equal(t, 50.0, got.CompletionPercent)
		assert.Equal(t, []string{b.ID}, got.BatchIDs)
		if assert.Len(t, got.Courses, 1) {
			assert.Equal(t, algebra.ID, got.Courses[0].CourseID)
			assert.Equal(t, 2, got.Courses[0].LessonsTotal)
			assert.Equal(t, 1, got.Courses[0].QuizzesPassed)
		}
		assert.Equal(t, sam.ID, sum.Students[1].ID)
		assert.Equal(t, 0.0, sum.Students[1].CompletionPercent)
	})

	t.Run("by student", func(t *testing.T) {
		sum := summary(getToken(t, env, tomP), "?studentId="+sam.ID)
		require.Len(t, sum.Students, 1)
		assert.Equal(t, sam.ID, sum.Students[0].ID)
	})

	t.Run("Students see themselves", func(t *testing.T) {
		sum := summary(annToken, "")
		require.Len(t, sum.Students, 1)
		assert.Equal(t, ann.ID, sum.Students[0].ID)

		req, rec := newAuthRequest(http.MethodGet, "/api/progress/summary?studentId="+sam.ID, annToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Trainer without batches", func(t *testing.T) {
		sum := summary(getToken(t, env, bobP), "")
		assert.Empty(t, sum.Students)
		assert.Empty(t, sum.Batches)
		assert.Equal(t, 0, sum.Totals.Students)
	})
}
