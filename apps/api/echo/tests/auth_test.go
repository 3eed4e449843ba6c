package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/somesha/apps/api/echo"
	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/profile"
)

func TestServer_home(t *testing.T) {
	env := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	env.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to "+env.conf.AppName+" API!", rec.Body.String())
}

func TestAuth_tokens(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")

	otherConf := core.ServerConfig{JWTSecret: "not-our-secret"}
	forged, err := echoapi.GenerateToken(otherConf, echoapi.NewClaims(otherConf, coord, time.Hour))
	assert.NoError(t, err)
	expired, err := echoapi.GenerateToken(env.conf.Server, echoapi.NewClaims(env.conf.Server, coord, -time.Minute))
	assert.NoError(t, err)
	invalidJWT := httpErr{Error: "invalid or expired jwt"}

	env.run(t, []httpTest{
		{name: "Auth required", path: "/api/schools", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Malformed token", path: "/api/schools", token: "nope", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, invalidJWT)},
		{name: "Forged token", path: "/api/schools", token: forged, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, invalidJWT)},
		{name: "Expired token", path: "/api/schools", token: expired, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, invalidJWT)},
		{name: "Valid token", path: "/api/schools", token: getToken(t, env, coord), wantData: marchallList(t, sch)},
	})
}

func TestAuth_issuerAndAudience(t *testing.T) {
	env := setup(t, func(conf *core.Config) {
		conf.Server.JWTIssuer = "https://id.somesha.test"
		conf.Server.JWTAudience = "somesha"
	})
	sch := env.createSchool(t, "Green Hill")
	coord, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")

	wrongAudience := env.conf.Server
	wrongAudience.JWTAudience = "someone-else"
	wrongIssuer := env.conf.Server
	wrongIssuer.JWTIssuer = "https://evil.test"

	token := func(conf core.ServerConfig) string {
		tok, err := echoapi.GenerateToken(env.conf.Server, echoapi.NewClaims(conf, coord, time.Hour))
		if err != nil {
			t.Fatalf("GenerateToken(): %v", err)
		}
		return tok
	}

	env.run(t, []httpTest{
		{name: "Matching claims", path: "/api/schools", token: token(env.conf.Server), wantData: marchallList(t, sch)},
		{name: "Wrong audience", path: "/api/schools", token: token(wrongAudience), wantCode: http.StatusUnauthorized},
		{name: "Wrong issuer", path: "/api/schools", token: token(wrongIssuer), wantCode: http.StatusUnauthorized},
	})
}

func TestProfileAPI_syncMe(t *testing.T) {
	env := setup(t)
	sch := env.createSchool(t, "Green Hill")

	// a trainer added by the coordinator before they signed up is invited
	coordP, _ := env.addCoordinator(t, sch, "coord@greenhill.test", "Grace")
	req, rec := newAuthRequest(
		http.MethodPost, "/api/trainers", getToken(t, env, coordP),
		[]byte(`{"name": "Tom Trainer", "email": "TOM@greenhill.test"}`),
	)
	env.serve(req, rec)
	assert.Equal(t, http.StatusCreated, rec.Code)
	if invitations := env.idp.Invitations(); assert.Len(t, invitations, 1) {
		assert.Equal(t, "tom@greenhill.test", invitations[0].Email)
		assert.Equal(t, member.RoleTrainer, invitations[0].Role)
	}

	// the session token of the signed up user carries neither their name nor their email
	usr := env.idp.AddUser("tom@greenhill.test", "Tom", "Trainer")
	trainerP := member.Principal{UserID: usr.ID, OrgID: sch.OrgID, OrgRole: member.RoleTrainer}

	noOrg := member.Principal{UserID: "user_lost", Email: "lost@nowhere.test", OrgRole: member.RoleStudent}
	unknownOrg := member.Principal{UserID: "user_x", Email: "x@nowhere.test", OrgID: "org_unknown", OrgRole: member.RoleStudent}

	t.Run("linked by email", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/sync/me", getToken(t, env, trainerP))
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var res profile.Result
		unmarshal(t, rec, &res)
		assert.Equal(t, "trainer", res.Role)
		assert.True(t, res.Linked)
		assert.False(t, res.Created)
		if assert.NotNil(t, res.Trainer) {
			assert.Equal(t, usr.ID, res.Trainer.UserID.String)
			assert.Equal(t, "tom@greenhill.test", res.Trainer.Email)
		}
		if assert.NotNil(t, res.School) {
			assert.Equal(t, sch.ID, res.School.ID)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/sync/me", getToken(t, env, trainerP))
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var res profile.Result
		unmarshal(t, rec, &res)
		assert.False(t, res.Linked)
		assert.False(t, res.Created)
	})

	t.Run("created from the token", func(t *testing.T) {
		p := member.Principal{UserID: "user_new", Email: "new@greenhill.test", Name: "Nia", OrgID: sch.OrgID, OrgRole: member.RoleMember}
		req, rec := newAuthRequest(http.MethodPost, "/api/sync/me", getToken(t, env, p))
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var res profile.Result
		unmarshal(t, rec, &res)
		assert.Equal(t, "student", res.Role)
		assert.True(t, res.Created)
		if assert.NotNil(t, res.Student) {
			assert.Equal(t, "Nia", res.Student.Name)
		}
	})

	env.run(t, []httpTest{
		{
			name: "platform admin", path: "/api/sync/me", token: getToken(t, env, platformAdmin()),
			wantData: []byte(`{"role": "platform_admin", "linked": false, "created": false}`),
		},
		{
			name: "no organization", path: "/api/sync/me", token: getToken(t, env, noOrg),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "no active organization"}),
		},
		{
			name: "unknown organization", path: "/api/sync/me", token: getToken(t, env, unknownOrg),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "school not found"}),
		},
	})
}
