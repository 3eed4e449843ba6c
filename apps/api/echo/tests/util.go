package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/somesha/apps/api/echo"
	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/assignment"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/course"
	"github.com/trezcool/somesha/core/learning"
	"github.com/trezcool/somesha/core/level"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/profile"
	"github.com/trezcool/somesha/core/progress"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
	"github.com/trezcool/somesha/core/upload"
	emailsvc "github.com/trezcool/somesha/services/email"
	filestoresvc "github.com/trezcool/somesha/services/filestore"
	identitysvc "github.com/trezcool/somesha/services/identity"
	logsvc "github.com/trezcool/somesha/services/logger"
	dummydb "github.com/trezcool/somesha/storage/database/dummy"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

// testEnv is a Server running on the in-memory database and identity provider.
type testEnv struct {
	app   *echoapi.Server
	conf  *core.Config
	idp   *identitysvc.MemoryProvider
	mail  *emailsvc.ConsoleServiceMock
	files *filestoresvc.LocalStorage

	schools     *school.Service
	trainers    *trainer.Service
	students    *student.Service
	batches     *batch.Service
	courses     *course.Service
	levels      *level.Service
	learning    *learning.Service
	assignments *assignment.Service
	profiles    *profile.Service
}

// setup builds a fresh testEnv; `configure` may adjust the configuration before the Server is built.
func setup(t *testing.T, configure ...func(conf *core.Config)) *testEnv {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Server.DisableReqLogs = true
	conf.Server.JWTSecret = "test-session-secret"
	conf.Server.JWTIssuer = ""
	conf.Server.JWTAudience = ""
	conf.Storage.MaxUploadSize = 1 << 20
	for _, fn := range configure {
		fn(conf)
	}

	logger := logsvc.NewRollbarLoggerMock()
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db := dummydb.Open()
	tx := &dummydb.Transactor{}

	// set up services
	idp := identitysvc.NewMemoryProvider()
	reconciler := member.NewReconciler(idp, "http://localhost:3000/accept-invite", logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	files, err := filestoresvc.NewLocalStorage(t.TempDir(), "http://localhost/uploads", "test-secret-key")
	require.NoError(t, err)

	env := &testEnv{conf: conf, idp: idp, mail: mailSvc, files: files}
	env.schools = school.NewService(dummydb.NewSchoolRepository(db), idp, reconciler, logger)
	env.trainers = trainer.NewService(dummydb.NewTrainerRepository(db), tx, reconciler, logger)
	env.batches = batch.NewService(dummydb.NewBatchRepository(db), tx)
	env.students = student.NewService(dummydb.NewStudentRepository(db), env.batches, reconciler, mailSvc, logger)
	env.courses = course.NewService(dummydb.NewCourseRepository(db), tx)
	env.levels = level.NewService(dummydb.NewLevelRepository(db), tx)
	env.learning = learning.NewService(dummydb.NewLearningRepository(db), tx, env.courses)
	env.assignments = assignment.NewService(
		dummydb.NewAssignmentRepository(db), env.batches, env.courses, env.students, mailSvc, logger,
	)
	env.profiles = profile.NewService(env.schools, env.trainers, env.students, reconciler, logger)

	// set up server
	env.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Schools:     env.schools,
		Trainers:    env.trainers,
		Students:    env.students,
		Batches:     env.batches,
		Courses:     env.courses,
		Levels:      env.levels,
		Learning:    env.learning,
		Assignments: env.assignments,
		Progress:    progress.NewService(dummydb.NewProgressRepository(db)),
		Profiles:    env.profiles,
		Uploads:     upload.NewService(dummydb.NewUploadRepository(db), files, conf.Storage.MaxUploadSize),
		LocalFiles:  files,
	})
	return env
}

// Fixtures

func (env *testEnv) createSchool(t *testing.T, name string) school.School {
	sch, err := env.schools.Create(context.Background(), school.NewSchool{Name: name, Slug: core.Slugify(name)})
	require.NoError(t, err)
	return sch
}

// addMember signs a user up at the identity provider and syncs their role record in `sch`.
func (env *testEnv) addMember(t *testing.T, sch school.School, role, email, name string) (member.Principal, profile.Result) {
	usr := env.idp.AddUser(email, name, "")
	p := member.Principal{
		UserID:  usr.ID,
		Email:   usr.Email,
		Name:    name,
		OrgID:   sch.OrgID,
		OrgSlug: sch.Slug,
		OrgRole: role,
	}
	res, err := env.profiles.Sync(context.Background(), p)
	require.NoError(t, err)
	return p, res
}

func (env *testEnv) addCoordinator(t *testing.T, sch school.School, email, name string) (member.Principal, school.Coordinator) {
	p, res := env.addMember(t, sch, member.RoleCoordinator, email, name)
	require.NotNil(t, res.Coordinator)
	return p, *res.Coordinator
}

func (env *testEnv) addTrainer(t *testing.T, sch school.School, email, name string) (member.Principal, trainer.Trainer) {
	p, res := env.addMember(t, sch, member.RoleTrainer, email, name)
	require.NotNil(t, res.Trainer)
	return p, *res.Trainer
}

func (env *testEnv) addStudent(t *testing.T, sch school.School, email, name string) (member.Principal, student.Student) {
	p, res := env.addMember(t, sch, member.RoleStudent, email, name)
	require.NotNil(t, res.Student)
	return p, *res.Student
}

func platformAdmin() member.Principal {
	return member.Principal{
		UserID:       "user_platform_admin",
		Email:        "staff@somesha.test",
		Name:         "Platform Staff",
		PlatformRole: member.PlatformAdmin,
	}
}

func (env *testEnv) createCourse(t *testing.T, title string, published bool) course.Course {
	c, err := env.courses.Create(context.Background(), course.NewCourse{
		Title:       title,
		Slug:        core.Slugify(title),
		IsPublished: published,
	})
	require.NoError(t, err)
	return c
}

func (env *testEnv) addLesson(t *testing.T, c course.Course, title string) course.Lesson {
	l, err := env.courses.AddLesson(context.Background(), c, course.LessonInput{Title: title})
	require.NoError(t, err)
	return l
}

// addQuiz adds a quiz whose right answers are `answers` (one 2-option question per answer).
func (env *testEnv) addQuiz(t *testing.T, c course.Course, title string, answers ...int) course.Quiz {
	questions := make([]course.Question, len(answers))
	for i := range answers {
		answer := answers[i]
		questions[i] = course.Question{Prompt: title + " question", Options: []string{"yes", "no"}, Answer: &answer}
	}
	q, err := env.courses.AddQuiz(context.Background(), c, course.QuizInput{Title: title, Questions: questions})
	require.NoError(t, err)
	return q
}

func (env *testEnv) createLevel(t *testing.T, name string, courses ...course.Course) level.Level {
	ctx := context.Background()
	l, err := env.levels.Create(ctx, level.NewLevel{Name: name})
	require.NoError(t, err)
	if len(courses) > 0 {
		ids := make([]string, len(courses))
		for i, c := range courses {
			ids[i] = c.ID
		}
		l, err = env.levels.SetCourses(ctx, l, ids)
		require.NoError(t, err)
	}
	return l
}

func (env *testEnv) createBatch(t *testing.T, sch school.School, name, levelID string, trainerIDs, studentIDs []string) batch.Batch {
	b, err := env.batches.Create(context.Background(), sch.ID, batch.NewBatch{
		Name:       name,
		LevelID:    levelID,
		TrainerIDs: trainerIDs,
		StudentIDs: studentIDs,
	})
	require.NoError(t, err)
	return b
}

// HTTP helpers

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a multipart/form-data request uploading `content` as the "file" field.
func newMultipartRequest(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func getToken(t *testing.T, env *testEnv, p member.Principal) string {
	claims := echoapi.NewClaims(env.conf.Server, p, time.Hour)
	token, err := echoapi.GenerateToken(env.conf.Server, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	if _, ok := j2.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
