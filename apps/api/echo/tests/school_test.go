package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
)

func Test_schoolApi_query(t *testing.T) {
	env := setup(t)
	green := env.createSchool(t, "Green Hill")
	blue := env.createSchool(t, "Blue Lake")
	coord, _ := env.addCoordinator(t, green, "coord@greenhill.test", "Grace")
	studentP, _ := env.addStudent(t, blue, "sam@bluelake.test", "Sam")
	adminToken := getToken(t, env, platformAdmin())

	env.run(t, []httpTest{
		{name: "Auth required", path: "/api/schools", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Platform admin sees all", path: "/api/schools", token: adminToken, wantData: marchallList(t, green, blue)},
		{name: "search", path: "/api/schools?search=lake", token: adminToken, wantData: marchallList(t, blue)},
		{name: "Coordinator sees own", path: "/api/schools?search=lake", token: getToken(t, env, coord), wantData: marchallList(t, green)},
		{name: "Student sees own", path: "/api/schools", token: getToken(t, env, studentP), wantData: marchallList(t, blue)},
	})
}

func Test_schoolApi_create(t *testing.T) {
	env := setup(t)
	existing := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, existing, "coord@greenhill.test", "Grace")
	adminToken := getToken(t, env, platformAdmin())

	env.run(t, []httpTest{
		{
			name: "Platform admin required", method: http.MethodPost, path: "/api/schools", token: getToken(t, env, coord),
			body: []byte(`{"name": "Blue Lake"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Name required", method: http.MethodPost, path: "/api/schools", token: adminToken,
			body: []byte(`{"name": "  "}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Slug taken", method: http.MethodPost, path: "/api/schools", token: adminToken,
			body:     []byte(`{"name": "Green  Hill"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"slug": "a school with this slug already exists"}`),
		},
		{
			name: "Organization taken", method: http.MethodPost, path: "/api/schools", token: adminToken,
			body:     []byte(`{"name": "Red Rock", "orgId": "` + existing.OrgID + `"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"orgId": "a school is already linked to this organization"}`),
		},
	})

	t.Run("Created with its organization", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/schools", adminToken,
			[]byte(`{"name": " Blue   Lake ", "city": "Nairobi", "contactEmail": "Office@BlueLake.test"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sch school.School
		unmarshal(t, rec, &sch)
		assert.Equal(t, "Blue Lake", sch.Name)
		assert.Equal(t, "blue-lake", sch.Slug)
		assert.Equal(t, "office@bluelake.test", sch.ContactEmail)
		assert.True(t, sch.IsActive)
		assert.NotEmpty(t, sch.OrgID)
	})
}

func Test_schoolApi_detail(t *testing.T) {
	env := setup(t)
	green := env.createSchool(t, "Green Hill")
	blue := env.createSchool(t, "Blue Lake")
	coord, _ := env.addCoordinator(t, green, "coord@greenhill.test", "Grace")
	trainerP, _ := env.addTrainer(t, green, "tom@greenhill.test", "Tom")
	coordToken := getToken(t, env, coord)
	adminToken := getToken(t, env, platformAdmin())

	env.run(t, []httpTest{
		{name: "Coordinator gets own", path: "/api/schools/" + green.ID, token: coordToken, wantData: marchallObj(t, green)},
		{name: "Other school hidden", path: "/api/schools/" + blue.ID, token: coordToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "Trainers cannot manage", path: "/api/schools/" + green.ID, token: getToken(t, env, trainerP), wantCode: http.StatusNotFound},
		{name: "Unknown", path: "/api/schools/nope", token: adminToken, wantCode: http.StatusNotFound},
		{name: "Platform admin gets any", path: "/api/schools/" + blue.ID, token: adminToken, wantData: marchallObj(t, blue)},
		{
			name: "Coordinator cannot deactivate", method: http.MethodPut, path: "/api/schools/" + green.ID, token: coordToken,
			body: []byte(`{"isActive": false}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Coordinator cannot delete", method: http.MethodDelete, path: "/api/schools/" + green.ID, token: coordToken,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("Coordinator updates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/schools/"+green.ID, coordToken, []byte(`{"city": "Kisumu"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var sch school.School
		unmarshal(t, rec, &sch)
		assert.Equal(t, "Kisumu", sch.City)
		assert.Equal(t, green.Name, sch.Name)
	})

	t.Run("Inactive school is closed to its members", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/schools/"+green.ID, adminToken, []byte(`{"isActive": false}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/api/trainers", coordToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error": "school is inactive"}`, rec.Body.String())

		// platform admins still reach it
		req, rec = newAuthRequest(http.MethodGet, "/api/trainers?schoolId="+green.ID, adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Platform admin deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/schools/"+blue.ID, adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := env.schools.GetByID(context.Background(), blue.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func Test_tenancy(t *testing.T) {
	env := setup(t)
	green := env.createSchool(t, "Green Hill")
	blue := env.createSchool(t, "Blue Lake")
	_, greenTrainer := env.addTrainer(t, green, "tom@greenhill.test", "Tom")
	_, blueTrainer := env.addTrainer(t, blue, "bob@bluelake.test", "Bob")
	coord, _ := env.addCoordinator(t, green, "coord@greenhill.test", "Grace")
	adminToken := getToken(t, env, platformAdmin())

	greenTrainer, err := env.trainers.Get(context.Background(), green.ID, member.Lookup{ID: greenTrainer.ID})
	require.NoError(t, err)
	blueTrainer, err = env.trainers.Get(context.Background(), blue.ID, member.Lookup{ID: blueTrainer.ID})
	require.NoError(t, err)

	env.run(t, []httpTest{
		{
			name: "Platform admin needs a school", path: "/api/trainers", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "schoolId is required"}),
		},
		{name: "Platform admin picks a school", path: "/api/trainers?schoolId=" + blue.ID, token: adminToken, wantData: marchallList(t, blueTrainer)},
		// members always act within their own organization
		{name: "schoolId ignored for members", path: "/api/trainers?schoolId=" + blue.ID, token: getToken(t, env, coord), wantData: marchallList(t, greenTrainer)},
		{name: "Other tenant's record", path: "/api/trainers/" + blueTrainer.ID, token: getToken(t, env, coord), wantCode: http.StatusNotFound},
		{
			name: "No organization", path: "/api/trainers",
			token:    getToken(t, env, member.Principal{UserID: "user_lost", OrgRole: member.RoleStudent}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "no active organization"}),
		},
	})
}

func Test_schoolApi_coordinators(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coordP, coord := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	trainerP, _ := env.addTrainer(t, sch, "tom@greenhill.test", "Tom")
	coordToken := getToken(t, env, coordP)

	env.run(t, []httpTest{
		{name: "Coordinator required", path: "/api/coordinators", token: getToken(t, env, trainerP), wantCode: http.StatusForbidden},
		{name: "List", path: "/api/coordinators", token: coordToken, wantData: marchallList(t, coord)},
		{
			name: "Email taken", method: http.MethodPost, path: "/api/coordinators", token: coordToken,
			body:     []byte(`{"name": "Grace Again", "email": "COORD@greenhill.test"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email": "a coordinator with this email already exists"}`),
		},
		{
			name: "Cannot remove self", method: http.MethodDelete, path: "/api/coordinators/" + coord.ID, token: coordToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "you cannot remove yourself"}),
		},
	})

	t.Run("Add then remove", func(t *testing.T) {
		usr := env.idp.AddUser("ann@greenhill.test", "Ann", "")

		req, rec := newAuthRequest(http.MethodPost, "/api/coordinators", coordToken,
			[]byte(`{"name": "Ann", "email": "ann@greenhill.test"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var added school.Coordinator
		unmarshal(t, rec, &added)
		assert.Equal(t, usr.ID, added.UserID.String)
		assert.Equal(t, member.RoleCoordinator, env.idp.Role(sch.OrgID, usr.ID))

		req, rec = newAuthRequest(http.MethodDelete, "/api/coordinators/"+added.ID, coordToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, env.idp.Role(sch.OrgID, usr.ID))
	})
}
