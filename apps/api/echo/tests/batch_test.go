package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core/batch"
)

func Test_batchApi_query(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	samP, _ := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	lvl := env.createLevel(t, "Beginner")
	env.createBatch(t, sch, "Evening", "", nil, nil)
	env.createBatch(t, sch, "Morning", lvl.ID, []string{tom.ID}, []string{ann.ID})

	ctx := context.Background()
	all, err := env.batches.Query(ctx, sch.ID, batch.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	evening, morning := all[0], all[1]

	env.run(t, []httpTest{
		{name: "Coordinator sees all", path: "/api/batches", token: getToken(t, env, coord), wantData: marchallList(t, evening, morning)},
		{name: "by level", path: "/api/batches?levelId=" + lvl.ID, token: getToken(t, env, coord), wantData: marchallList(t, morning)},
		{name: "Trainer sees own", path: "/api/batches", token: getToken(t, env, tomP), wantData: marchallList(t, morning)},
		{name: "Student sees own", path: "/api/batches", token: getToken(t, env, annP), wantData: marchallList(t, morning)},
		{name: "Student without batches", path: "/api/batches", token: getToken(t, env, samP), wantData: marchallList(t)},
	})
}

func Test_batchApi_create(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	other := env.createSchool(t, "Blue Lake")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	_, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	_, stranger := env.addTrainer(t, other, "bob@bluelake.test", "Bob")
	env.createBatch(t, sch, "Morning", "", nil, nil)
	lvl := env.createLevel(t, "Beginner")
	coordToken := getToken(t, env, coord)

	env.run(t, []httpTest{
		{
			name: "Coordinator required", method: http.MethodPost, path: "/api/batches", token: getToken(t, env, tomP),
			body: []byte(`{"name": "Evening"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Name taken", method: http.MethodPost, path: "/api/batches", token: coordToken,
			body:     []byte(`{"name": " Morning "}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "a batch with this name already exists"}`),
		},
		{
			name: "Ends before it starts", method: http.MethodPost, path: "/api/batches", token: coordToken,
			body:     []byte(`{"name": "Evening", "startDate": "2024-03-01T00:00:00Z", "endDate": "2024-02-01T00:00:00Z"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"endDate": "must not be before the start date"}`),
		},
		{
			name: "Unknown level", method: http.MethodPost, path: "/api/batches", token: coordToken,
			body:     []byte(`{"name": "Evening", "levelId": "` + uuid.New().String() + `"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"levelId": "unknown level"}`),
		},
		{
			name: "Trainer of another school", method: http.MethodPost, path: "/api/batches", token: coordToken,
			body:     []byte(`{"name": "Evening", "trainerIds": ["` + stranger.ID + `"]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"trainerIds": "not members of this school: ` + stranger.ID + `"}`),
		},
	})

	t.Run("Created with its members", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/batches", coordToken, []byte(`{
			"name": "Evening",
			"levelId": "`+lvl.ID+`",
			"startDate": "2024-02-01T00:00:00Z",
			"trainerIds": ["`+tom.ID+`"],
			"studentIds": ["`+ann.ID+`", "`+ann.ID+`"]
		}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var b batch.Batch
		unmarshal(t, rec, &b)
		assert.True(t, b.IsActive)
		assert.Equal(t, lvl.ID, b.LevelID.String)
		assert.Equal(t, []string{tom.ID}, b.TrainerIDs)
		assert.Equal(t, []string{ann.ID}, b.StudentIDs)
		assert.False(t, b.EndDate.Valid)
	})
}

func Test_batchApi_detail(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	tomP, tom := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	bobP, bob := env.addTrainer(t, sch, "bob@greenhill.test", "Bob")
	annP, ann := env.addStudent(t, sch, "ann@greenhill.test", "Ann")
	samP, sam := env.addStudent(t, sch, "sam@greenhill.test", "Sam")
	b := env.createBatch(t, sch, "Morning", "", []string{tom.ID}, []string{ann.ID})
	coordToken := getToken(t, env, coord)
	path := "/api/batches/" + b.ID

	b, err := env.batches.Get(context.Background(), sch.ID, b.ID)
	require.NoError(t, err)

	env.run(t, []httpTest{
		{name: "Coordinator", path: path, token: coordToken, wantData: marchallObj(t, b)},
		{name: "Trainer of the batch", path: path, token: getToken(t, env, tomP), wantData: marchallObj(t, b)},
		{name: "Student of the batch", path: path, token: getToken(t, env, annP), wantData: marchallObj(t, b)},
		{name: "Other trainer", path: path, token: getToken(t, env, bobP), wantCode: http.StatusNotFound},
		{name: "Other student", path: path, token: getToken(t, env, samP), wantCode: http.StatusNotFound},
		{name: "Unknown", path: "/api/batches/" + uuid.New().String(), token: coordToken, wantCode: http.StatusNotFound},
		{
			name: "Trainers cannot update", method: http.MethodPut, path: path, token: getToken(t, env, tomP),
			body: []byte(`{"name": "Dawn"}`), wantCode: http.StatusForbidden,
		},
	})

	t.Run("Update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, coordToken, []byte(`{"name": "Dawn", "isActive": false}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var updated batch.Batch
		unmarshal(t, rec, &updated)
		assert.Equal(t, "Dawn", updated.Name)
		assert.False(t, updated.IsActive)
		assert.Equal(t, b.TrainerIDs, updated.TrainerIDs)
	})

	t.Run("Members", func(t *testing.T) {
		members := func(method, sub, body string) batch.Batch {
			req, rec := newAuthRequest(method, path+sub, coordToken, []byte(body))
			env.serve(req, rec)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var got batch.Batch
			unmarshal(t, rec, &got)
			return got
		}

		got := members(http.MethodPut, "/trainers", `{"trainerIds": ["`+bob.ID+`"]}`)
		assert.Equal(t, []string{bob.ID}, got.TrainerIDs)

		got = members(http.MethodPost, "/students", `{"studentIds": ["`+sam.ID+`"]}`)
		assert.ElementsMatch(t, []string{ann.ID, sam.ID}, got.StudentIDs)

		got = members(http.MethodPut, "/students", `{"studentIds": ["`+sam.ID+`"]}`)
		assert.Equal(t, []string{sam.ID}, got.StudentIDs)

		req, rec := newAuthRequest(http.MethodPut, path+"/students", coordToken, []byte(`{"studentIds": ["`+uuid.New().String()+`"]}`))
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		// tom left the batch
		req, rec = newAuthRequest(http.MethodGet, path, getToken(t, env, tomP))
		env.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path, coordToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := env.batches.Get(context.Background(), sch.ID, b.ID)
		assert.Error(t, err)
	})
}
