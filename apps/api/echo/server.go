package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/assignment"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/course"
	"github.com/trezcool/somesha/core/learning"
	"github.com/trezcool/somesha/core/level"
	"github.com/trezcool/somesha/core/profile"
	"github.com/trezcool/somesha/core/progress"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
	"github.com/trezcool/somesha/core/upload"
	filestoresvc "github.com/trezcool/somesha/services/filestore"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		Schools     *school.Service
		Trainers    *trainer.Service
		Students    *student.Service
		Batches     *batch.Service
		Courses     *course.Service
		Levels      *level.Service
		Learning    *learning.Service
		Assignments *assignment.Service
		Progress    *progress.Service
		Profiles    *profile.Service
		Uploads     *upload.Service

		// LocalFiles serves the signed URLs of the local storage driver, when used.
		LocalFiles *filestoresvc.LocalStorage
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Schools, "Schools"),
		vala.IsNotNil(deps.Trainers, "Trainers"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Batches, "Batches"),
		vala.IsNotNil(deps.Courses, "Courses"),
		vala.IsNotNil(deps.Levels, "Levels"),
		vala.IsNotNil(deps.Learning, "Learning"),
		vala.IsNotNil(deps.Assignments, "Assignments"),
		vala.IsNotNil(deps.Progress, "Progress"),
		vala.IsNotNil(deps.Profiles, "Profiles"),
		vala.IsNotNil(deps.Uploads, "Uploads"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.deps.LocalFiles != nil {
		s.app.GET("/uploads/*", serveLocalFile(s.deps.LocalFiles))
	}

	g := s.app.Group("/api", authMiddleware(conf.Server))
	tn := newTenancy(s.deps.Schools, s.deps.Trainers, s.deps.Students)

	registerSchoolAPI(g, tn, s.deps)
	registerTrainerAPI(g, tn, s.deps)
	registerStudentAPI(g, tn, s.deps)
	registerBatchAPI(g, tn, s.deps)
	registerCourseAPI(g, tn, s.deps)
	registerLevelAPI(g, s.deps)
	registerLearningAPI(g, tn, s.deps)
	registerAssignmentAPI(g, tn, s.deps)
	registerProgressAPI(g, tn, s.deps)
	registerProfileAPI(g, s.deps)
	registerUploadAPI(g, tn, s.deps)
}

// Start listens on the configured host. Listening errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
