package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/student"
)

func Test_studentApi_query(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	bobP, _ := env.addTrainer(t, sch, "bob@greenhill.test", "Bob")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	_, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	env.createBatch(t, sch, "Morning", "", []string{tom.ID}, []string{ann.ID})

	ctx := context.Background()
	ann, err := env.students.Get(ctx, sch.ID, member.Lookup{ID: ann.ID})
	require.NoError(t, err)
	ann.BatchIDs = nil // lists do not carry batches
	sam.BatchIDs = nil

	env.run(t, []httpTest{
		{name: "Coordinator sees all", path: "/api/students", token: getToken(t, env, coord), wantData: marchallList(t, ann, sam)},
		{name: "search", path: "/api/students?search=SAM", token: getToken(t, env, coord), wantData: marchallList(t, sam)},
		{name: "Trainer sees their batches' students", path: "/api/students", token: getToken(t, env, tomP), wantData: marchallList(t, ann)},
		{name: "Trainer without batches", path: "/api/students", token: getToken(t, env, bobP), wantData: marchallList(t)},
		{name: "Student sees self", path: "/api/students", token: getToken(t, env, annP), wantData: marchallList(t, ann)},
	})
}

func Test_studentApi_create(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	trainerP, _ := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	b := env.createBatch(t, sch, "Morning", "", nil, nil)
	coordToken := getToken(t, env, coord)
	unknownBatch := uuid.New().String()

	env.run(t, []httpTest{
		{
			name: "Coordinator required", method: http.MethodPost, path: "/api/students", token: getToken(t, env, trainerP),
			body: []byte(`{"name": "Ann", "email": "ann@greenhill.test"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Email taken", method: http.MethodPost, path: "/api/students", token: coordToken,
			body:     []byte(`{"name": "Samuel", "email": "SAM@greenhill.test"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email": "a student with this email already exists"}`),
		},
		{
			name: "Unknown batch", method: http.MethodPost, path: "/api/students", token: coordToken,
			body:     []byte(`{"name": "Ann", "email": "ann@greenhill.test", "batchId": "` + unknownBatch + `"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"batchId": "batch not found"}`),
		},
	})

	t.Run("Invited and welcomed", func(t *testing.T) {
		env.mail.Reset()
		req, rec := newAuthRequest(http.MethodPost, "/api/students", coordToken,
			[]byte(`{"name": "Ann", "email": "Ann@GreenHill.test", "rollNumber": "R-01", "batchId": "`+b.ID+`"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, "ann@greenhill.test", s.Email)
		assert.Equal(t, student.SyncInvited, s.SyncStatus)
		assert.False(t, s.UserID.Valid)
		assert.Equal(t, []string{b.ID}, s.BatchIDs)

		if sent := env.mail.SentMessages(); assert.Len(t, sent, 1) {
			assert.Equal(t, "student_welcome", sent[0].TemplateName)
			assert.Equal(t, "ann@greenhill.test", sent[0].To[0].Address)
		}
	})

	t.Run("Linked to an existing user", func(t *testing.T) {
		usr := env.idp.AddUser("ken@greenhill.test", "Ken", "")

		req, rec := newAuthRequest(http.MethodPost, "/api/students", coordToken, []byte(`{"name": "Ken", "email": "ken@greenhill.test"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, student.SyncSynced, s.SyncStatus)
		assert.Equal(t, usr.ID, s.UserID.String)
		assert.Equal(t, member.RoleStudent, env.idp.Role(sch.OrgID, usr.ID))
	})
}

func Test_studentApi_detail(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	bobP, _ := env.addTrainer(t, sch, "bob@greenhill.test", "Bob")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	_, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	env.createBatch(t, sch, "Morning", "", []string{tom.ID}, []string{ann.ID})
	coordToken := getToken(t, env, coord)
	annToken := getToken(t, env, annP)

	ann, err := env.students.Get(context.Background(), sch.ID, member.Lookup{ID: ann.ID})
	require.NoError(t, err)

	env.run(t, []httpTest{
		{name: "Self", path: "/api/students/" + ann.ID, token: annToken, wantData: marchallObj(t, ann)},
		{name: "Another student", path: "/api/students/" + sam.ID, token: annToken, wantCode: http.StatusNotFound},
		{name: "Trainer of the batch", path: "/api/students/" + ann.ID, token: getToken(t, env, tomP), wantData: marchallObj(t, ann)},
		{name: "Trainer of another batch", path: "/api/students/" + ann.ID, token: getToken(t, env, bobP), wantCode: http.StatusNotFound},
		{name: "Coordinator", path: "/api/students/" + sam.ID, token: coordToken, wantData: marchallObj(t, sam)},
		{
			name: "Students cannot update themselves", method: http.MethodPut, path: "/api/students/" + ann.ID, token: annToken,
			body: []byte(`{"grade": "5"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Blank name", method: http.MethodPut, path: "/api/students/" + ann.ID, token: coordToken,
			body: []byte(`{"name": "  "}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("Coordinator updates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/students/"+ann.ID, coordToken, []byte(`{"grade": "Form 2", "guardianName": "Mama Ann"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, "Form 2", s.Grade)
		assert.Equal(t, "Mama Ann", s.GuardianName)
		assert.Equal(t, ann.UserID, s.UserID)
		assert.Equal(t, ann.BatchIDs, s.BatchIDs)
	})

	t.Run("A new email is reconciled", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/students/"+sam.ID, coordToken, []byte(`{"email": "samuel@greenhill.test"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, "samuel@greenhill.test", s.Email)
		assert.Equal(t, student.SyncInvited, s.SyncStatus)
		assert.False(t, s.UserID.Valid)
	})

	t.Run("Coordinator deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/students/"+ann.ID, coordToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, env.idp.Role(sch.OrgID, ann.UserID.String))
	})
}

func Test_studentApi_import(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	trainerP, _ := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	_, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	b := env.createBatch(t, sch, "Morning", "", nil, nil)
	ken := env.idp.AddUser("ken@greenhill.test", "Ken", "")
	coordToken := getToken(t, env, coord)

	roster := []byte("Full Name,E-mail,Roll No\n" +
		"Ann Achieng,ann@greenhill.test,R-01\n" +
		"Sam Smith,SAM@greenhill.test,R-02\n" +
		"Bad Row,not-an-email,R-03\n" +
		",,\n" +
		"Ken Otieno,ken@greenhill.test,\n")

	t.Run("Coordinator required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/students/import", getToken(t, env, trainerP), "roster.csv", roster, nil)
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("File required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/students/import", coordToken, "", nil, nil)
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "file is required"}`, rec.Body.String())
	})

	t.Run("Missing columns", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/students/import", coordToken, "roster.csv", []byte("E-mail,Phone\nann@greenhill.test,0700\n"), nil)
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "name: missing required columns"}`, rec.Body.String())
	})

	t.Run("Imported into the batch", func(t *testing.T) {
		env.mail.Reset()
		req, rec := newMultipartRequest(t, "/api/students/import", coordToken, "roster.csv", roster, map[string]string{"batchId": b.ID})
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var report student.ImportReport
		unmarshal(t, rec, &report)
		assert.Equal(t, 2, report.Created)
		assert.Equal(t, 1, report.Updated)
		assert.Equal(t, 1, report.Invited)
		assert.Equal(t, 1, report.Linked)
		assert.Equal(t, 0, report.SyncFailed)
		if assert.Len(t, report.Errors, 1) {
			assert.Equal(t, 4, report.Errors[0].Row)
			assert.Equal(t, "not-an-email", report.Errors[0].Email)
			assert.NotEmpty(t, report.Errors[0].Error)
		}

		// only new students are welcomed
		assert.Len(t, env.mail.SentMessages(), 2)

		ctx := context.Background()
		enrolled, err := env.students.Query(ctx, sch.ID, student.QueryFilter{BatchID: b.ID}, nil)
		require.NoError(t, err)
		emails := make([]string, len(enrolled))
		for i, s := range enrolled {
			emails[i] = s.Email
		}
		assert.ElementsMatch(t, []string{"ann@greenhill.test", "sam@greenhill.test", "ken@greenhill.test"}, emails)

		updated, err := env.students.Get(ctx, sch.ID, member.Lookup{ID: sam.ID})
		require.NoError(t, err)
		assert.Equal(t, "Sam Smith", updated.Name)
		assert.Equal(t, "R-02", updated.RollNumber)

		linked, err := env.students.Get(ctx, sch.ID, member.Lookup{Email: "ken@greenhill.test"})
		require.NoError(t, err)
		assert.Equal(t, ken.ID, linked.UserID.String)
		assert.Equal(t, student.SyncSynced, linked.SyncStatus)
	})
}

func Test_studentService_reconcilePending(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	ctx := context.Background()

	// the identity provider is down while the student is added
	env.idp.FailingEmails["ann@greenhill.test"] = assert.AnError
	req, rec := newAuthRequest(http.MethodPost, "/api/students", getToken(t, env, coord), []byte(`{"name": "Ann", "email": "ann@greenhill.test"}`))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var s student.Student
	unmarshal(t, rec, &s)
	assert.Equal(t, student.SyncFailed, s.SyncStatus)
	assert.True(t, s.SyncError.Valid)

	synced, err := env.students.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, synced)

	delete(env.idp.FailingEmails, "ann@greenhill.test")
	synced, err = env.students.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	s, err = env.students.Get(ctx, sch.ID, member.Lookup{ID: s.ID})
	require.NoError(t, err)
	assert.Equal(t, student.SyncInvited, s.SyncStatus)
	assert.False(t, s.SyncError.Valid)
}
