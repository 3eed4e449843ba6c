package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core/level"
)

func Test_levelApi(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	algebra := env.createCourse(t, "Algebra", true)
	biology := env.createCourse(t, "Biology", true)
	beginner := env.createLevel(t, "Beginner", algebra)
	adminToken := getToken(t, env, platformAdmin())
	coordToken := getToken(t, env, coord)
	ctx := context.Background()

	levels, err := env.levels.QueryAll(ctx)
	require.NoError(t, err)

	env.run(t, []httpTest{
		{name: "Members list levels", path: "/api/levels", token: coordToken, wantData: marchallList(t, levels[0])},
		{name: "Detail", path: "/api/levels/" + beginner.ID, token: coordToken, wantData: marchallObj(t, beginner)},
		{name: "Unknown", path: "/api/levels/" + uuid.New().String(), token: coordToken, wantCode: http.StatusNotFound},
		{
			name: "Platform admin required", method: http.MethodPost, path: "/api/levels", token: coordToken,
			body: []byte(`{"name": "Advanced"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Name taken", method: http.MethodPost, path: "/api/levels", token: adminToken,
			body:     []byte(`{"name": "Beginner"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "a level with this name already exists"}`),
		},
	})

	var advanced level.Level
	t.Run("Create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/levels", adminToken, []byte(`{"name": "Advanced", "position": 2}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshal(t, rec, &advanced)
		assert.Equal(t, "Advanced", advanced.Name)
		assert.Equal(t, 2, advanced.Position)
		assert.Equal(t, []string{}, advanced.CourseIDs)
	})

	t.Run("Set courses in order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/levels/"+advanced.ID+"/courses", adminToken,
			[]byte(`{"courseIds": ["`+biology.ID+`", "`+algebra.ID+`"]}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var l level.Level
		unmarshal(t, rec, &l)
		assert.Equal(t, []string{biology.ID, algebra.ID}, l.CourseIDs)

		unknown := uuid.New().String()
		req, rec = newAuthRequest(http.MethodPut, "/api/levels/"+advanced.ID+"/courses", adminToken, []byte(`{"courseIds": ["`+unknown+`"]}`))
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"courseIds": "`+unknown+`: unknown courses"}`, rec.Body.String())
	})

	t.Run("Update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/levels/"+advanced.ID, adminToken, []byte(`{"description": "For the brave"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var l level.Level
		unmarshal(t, rec, &l)
		assert.Equal(t, "For the brave", l.Description)
		assert.Equal(t, []string{biology.ID, algebra.ID}, l.CourseIDs)
	})

	t.Run("Delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/levels/"+advanced.ID, adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := env.levels.Get(ctx, advanced.ID)
		assert.Error(t, err)
	})
}
