package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/somesha/apps/api/echo"
	"github.com/trezcool/somesha/apps/di"
	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	emailsvc "github.com/trezcool/somesha/services/email"
	identitysvc "github.com/trezcool/somesha/services/identity"
	logsvc "github.com/trezcool/somesha/services/logger"
	dummydb "github.com/trezcool/somesha/storage/database/dummy"
)

type testEnv struct {
	cli *commandLine
	out *bytes.Buffer
	idp *identitysvc.MemoryProvider
}

func setup(t *testing.T) *testEnv {
	conf := core.NewConfig()
	conf.Server.JWTSecret = "test-session-secret"
	logger := logsvc.NewRollbarLoggerMock()
	validate, translator := di.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := dummydb.Open()
	idp := identitysvc.NewMemoryProvider()
	reconciler := member.NewReconciler(idp, "http://localhost:3000/sign-up", logger)
	batches := batch.NewService(dummydb.NewBatchRepository(db), &dummydb.Transactor{})

	out := new(bytes.Buffer)
	return &testEnv{
		cli: &commandLine{
			db:         sqlDB,
			serverConf: conf.Server,
			schools:    school.NewService(dummydb.NewSchoolRepository(db), idp, reconciler, logger),
			students: student.NewService(
				dummydb.NewStudentRepository(db), batches, reconciler, emailsvc.NewConsoleServiceMock(conf, logger), logger,
			),
			validate:   validate,
			translator: translator,
			out:        out,
		},
		out: out,
		idp: idp,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (env *testEnv) run(t *testing.T, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := env.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	env := setup(t)
	env.run(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "addschool: no name", args: []string{"addschool"}, wantErr: errHelp},
		{name: "importstudents: no file", args: []string{"importstudents", "-school", "green-hill"}, wantErr: errHelp},
		{name: "reconcile: bad limit", args: []string{"reconcile", "-limit", "0"}, wantErr: errHelp},
		{name: "token: no org", args: []string{"token", "-user", "user_1", "-email", "ann@test.cd"}, wantErr: errHelp},
	})
	assert.Contains(t, env.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	env.run(t, []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})

	env.cli.db = nil
	env.run(t, []cliTest{
		{name: "memory engine", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})
}

func Test_commandLine_addSchool(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.run(t, []cliTest{
		{name: "created", args: []string{"addschool", "-name", " Green Hill "}},
		{name: "slug taken", args: []string{"addschool", "-name", "Green Hill"}, wantErrStr: "slug: a school with this slug already exists"},
		{name: "invalid slug", args: []string{"addschool", "-name", "Blue Lake", "-slug", "Blue Lake!"}, wantErrStr: "slug: only lowercase letters, digits and dashes are allowed"},
		{name: "with coordinator", args: []string{"addschool", "-name", "Blue Lake", "-coordinator", "Grace@BlueLake.test"}},
		{name: "existing org", args: []string{"addschool", "-name", "Red Rock", "-org", "org_red"}},
		{name: "org taken", args: []string{"addschool", "-name", "Red Rock 2", "-org", "org_red"}, wantErrStr: "orgId: " + school.ErrOrgExists.Error()},
	})

	rock, err := env.cli.schools.GetBySlug(ctx, "red-rock")
	require.NoError(t, err)
	assert.Equal(t, "org_red", rock.OrgID)

	sch, err := env.cli.schools.GetBySlug(ctx, "green-hill")
	require.NoError(t, err)
	assert.Equal(t, "Green Hill", sch.Name)
	assert.True(t, sch.IsActive)
	assert.NotEmpty(t, sch.OrgID)

	lake, err := env.cli.schools.GetBySlug(ctx, "blue-lake")
	require.NoError(t, err)
	coords, err := env.cli.schools.QueryCoordinators(ctx, lake.ID)
	require.NoError(t, err)
	require.Len(t, coords, 1)
	assert.Equal(t, "grace@bluelake.test", coords[0].Email)
	require.Len(t, env.idp.Invitations(), 1)
	assert.Equal(t, member.RoleCoordinator, env.idp.Invitations()[0].Role)

	assert.Contains(t, env.out.String(), `school "green-hill" created`)
	assert.Contains(t, env.out.String(), "coordinator grace@bluelake.test added (invited)")
}

func Test_commandLine_importStudents(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	require.NoError(t, env.cli.run([]string{"admin", "addschool", "-name", "Green Hill"}))
	sch, err := env.cli.schools.GetBySlug(ctx, "green-hill")
	require.NoError(t, err)

	roster := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(roster, []byte("Full Name,E-mail\nAnn,ann@greenhill.test\nBad,not-an-email\n"), 0o600))

	env.run(t, []cliTest{
		{name: "unknown school", args: []string{"importstudents", "-school", "nope", "-file", roster}, wantErr: school.ErrNotFound},
		{name: "missing file", args: []string{"importstudents", "-school", "green-hill", "-file", roster + ".missing"}, wantErrStr: "opening roster: open " + roster + ".missing: no such file or directory"},
	})

	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "importstudents", "-school", "green-hill", "-file", roster}))
	var report student.ImportReport
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &report))
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Invited)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 3, report.Errors[0].Row)
	assert.Equal(t, "not-an-email", report.Errors[0].Email)
	assert.Contains(t, report.Errors[0].Error, "email")

	students, err := env.cli.students.Query(ctx, sch.ID, student.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "ann@greenhill.test", students[0].Email)
	assert.Equal(t, student.SyncInvited, students[0].SyncStatus)

	t.Run("report table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReportTable(&buf, student.ImportReport{
			Created: 1,
			Invited: 1,
			Errors:  []student.ImportError{{Row: 3, Email: "not-an-email", Error: "email: must be a valid email address"}},
		}))
		out := buf.String()
		assert.Contains(t, out, "created: 1, updated: 0, invited: 1, linked: 0, sync failed: 0")
		assert.Contains(t, out, "1 rows rejected:")
		assert.Contains(t, out, "ROW  EMAIL         ERROR")
	})
}

func Test_commandLine_reconcile(t *testing.T) {
	env := setup(t)
	env.run(t, []cliTest{{name: "nothing pending", args: []string{"reconcile", "-limit", "10"}}})
	assert.Equal(t, "0 students reconciled\n", env.out.String())
}

func Test_commandLine_token(t *testing.T) {
	env := setup(t)
	env.run(t, []cliTest{
		{name: "member", args: []string{"token", "-user", "user_1", "-email", "ann@test.cd", "-org", "org_1", "-ttl", "1h"}},
	})

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(env.out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(env.cli.serverConf.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, member.Principal{UserID: "user_1", Email: "ann@test.cd", OrgID: "org_1", OrgRole: member.RoleStudent}, claims.Principal())
	assert.WithinDuration(t, time.Now().Add(time.Hour), time.Unix(claims.ExpiresAt, 0), time.Minute)

	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "token", "-user", "user_staff", "-email", "staff@test.cd", "-admin"}))
	claims = new(echoapi.Claims)
	_, err = jwt.ParseWithClaims(strings.TrimSpace(env.out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(env.cli.serverConf.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, claims.Principal().IsPlatformAdmin())
	assert.Empty(t, claims.OrgID)
}
