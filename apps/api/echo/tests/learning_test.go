package tests

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core/learning"
)

func Test_learningApi_lessons(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	algebra := env.createCourse(t, "Algebra", true)
	biology := env.createCourse(t, "Biology", true)
	lesson := env.addLesson(t, algebra, "Numbers")
	cells := env.addLesson(t, biology, "Cells")
	lvl := env.createLevel(t, "Beginner", algebra)
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	samP, _ := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	env.createBatch(t, sch, "Morning", lvl.ID, []string{tom.ID}, []string{ann.ID})
	annToken := getToken(t, env, annP)
	path := "/api/lessons/" + lesson.ID + "/complete"

	env.run(t, []httpTest{
		{name: "Students only", method: http.MethodPost, path: path, token: getToken(t, env, tomP), wantCode: http.StatusForbidden},
		{name: "Course not followed", method: http.MethodPost, path: path, token: getToken(t, env, samP), wantCode: http.StatusForbidden},
		{name: "Course outside the levels", method: http.MethodPost, path: "/api/lessons/" + cells.ID + "/complete", token: annToken, wantCode: http.StatusForbidden},
		{
			name: "Unknown lesson", method: http.MethodPost, path: "/api/lessons/" + uuid.New().String() + "/complete", token: annToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "lesson not found"}),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, path, annToken)
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first learning.LessonCompletion
	unmarshal(t, rec, &first)
	assert.Equal(t, ann.ID, first.StudentID)
	assert.Equal(t, algebra.ID, first.CourseID)

	// completing again keeps the first completion
	req, rec = newAuthRequest(http.MethodPost, path, annToken)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again learning.LessonCompletion
	unmarshal(t, rec, &again)
	assert.Equal(t, first.ID, again.ID)

	req, rec = newAuthRequest(http.MethodDelete, path, annToken)
	env.serve(req, rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, path, annToken)
	env.serve(req, rec)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func Test_learningApi_attempts(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	other := env.createSchool(t, "Blue Lake")
	algebra := env.createCourse(t, "Algebra", true)
	quiz := env.addQuiz(t, algebra, "Numbers check", 1, 0)
	lvl := env.createLevel(t, "Beginner", algebra)
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	bobP, _ := env.addTrainer(t, sch, "bob@greenhill.test", "Bob")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	samP, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	kimP, kim := env.addStudent(t, other, "kim@bluelake.test", "Kim")
	env.createBatch(t, sch, "Morning", lvl.ID, []string{tom.ID}, []string{ann.ID, sam.ID})
	env.createBatch(t, other, "Morning", lvl.ID, nil, []string{kim.ID})
	path := "/api/quizzes/" + quiz.ID + "/attempts"

	submit := func(token, body string) (int, learning.QuizAttempt) {
		req, rec := newAuthRequest(http.MethodPost, path, token, []byte(body))
		env.serve(req, rec)
		var a learning.QuizAttempt
		if rec.Code == http.StatusCreated {
			unmarshal(t, rec, &a)
		}
		return rec.Code, a
	}
	annToken := getToken(t, env, annP)

	code, a := submit(annToken, `{"answers": [1, 1]}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, a.Score)
	assert.Equal(t, 2, a.MaxScore)
	assert.True(t, a.Passed)
	assert.Equal(t, 1, a.AttemptNumber)
	assert.EqualValues(t, []int64{1, 1}, a.Answers)

	code, a = submit(annToken, `{"answers": [0]}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 0, a.Score)
	assert.False(t, a.Passed)
	assert.Equal(t, 2, a.AttemptNumber)

	code, _ = submit(getToken(t, env, samP), `{"answers": [1, 0]}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = submit(getToken(t, env, kimP), `{"answers": [1, 0]}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = submit(annToken, `{"answers": [-2]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = submit(getToken(t, env, tomP), `{"answers": [1, 0]}`)
	assert.Equal(t, http.StatusForbidden, code)

	listed := func(token string) []learning.QuizAttempt {
		req, rec := newAuthRequest(http.MethodGet, path, token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var attempts []learning.QuizAttempt
		unmarshal(t, rec, &attempts)
		return attempts
	}
	students := func(attempts []learning.QuizAttempt) []string {
		ids := make([]string, len(attempts))
		for i, a := range attempts {
			ids[i] = a.StudentID
		}
		return ids
	}

	t.Run("Students see their own, latest first", func(t *testing.T) {
		attempts := listed(annToken)
		if assert.Len(t, attempts, 2) {
			assert.Equal(t, 2, attempts[0].AttemptNumber)
			assert.Equal(t, 1, attempts[1].AttemptNumber)
		}
	})

	t.Run("Coordinators see their school's", func(t *testing.T) {
		assert.ElementsMatch(t, []string{ann.ID, ann.ID, sam.ID}, students(listed(getToken(t, env, coord))))
	})

	t.Run("Trainers see their batches'", func(t *testing.T) {
		assert.ElementsMatch(t, []string{ann.ID, ann.ID, sam.ID}, students(listed(getToken(t, env, tomP))))
		assert.Empty(t, listed(getToken(t, env, bobP)))
	})

	t.Run("by student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path+"?studentId="+sam.ID, getToken(t, env, coord))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var attempts []learning.QuizAttempt
		unmarshal(t, rec, &attempts)
		assert.Equal(t, []string{sam.ID}, students(attempts))

		// students cannot peek at others
		req, rec = newAuthRequest(http.MethodGet, path+"?studentId="+sam.ID, annToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &attempts)
		assert.Len(t, attempts, 2)
		for _, a := range attempts {
			assert.Equal(t, ann.ID, a.StudentID)
		}
	})
}
