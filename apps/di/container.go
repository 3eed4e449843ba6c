// Package di builds the application services from the configuration.
package di

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

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
	"github.com/trezcool/somesha/storage/database"
	dummydb "github.com/trezcool/somesha/storage/database/dummy"
	sqlxrepos "github.com/trezcool/somesha/storage/database/sqlx"
)

// EngineMemory keeps all records in memory: handy for demos, lost on exit.
const EngineMemory = "memory"

type (
	Options struct {
		// Migrate creates the database if needed and applies the pending migrations.
		Migrate bool
	}

	Container struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		DB    *sqlx.DB // nil with the memory engine
		Mail  core.EmailService
		IdP   core.IdentityProvider
		Files core.FileStorage

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
	}

	repositories struct {
		tx          core.Transactor
		schools     school.Repository
		trainers    trainer.Repository
		students    student.Repository
		batches     batch.Repository
		courses     course.Repository
		levels      level.Repository
		learning    learning.Repository
		assignments assignment.Repository
		progress    progress.Repository
		uploads     upload.Repository
	}
)

func NewLogger(conf *core.Config, prefix string) core.Logger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens the application database, creating and migrating it when asked to.
func OpenDB(ctx context.Context, conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if migrate {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// New wires every service of the application.
func New(ctx context.Context, conf *core.Config, logger core.Logger, opts Options) (*Container, error) {
	c := &Container{Conf: conf, Logger: logger}
	c.Validate, c.Translator = NewValidator()
	core.ParseEmailTemplates(conf, logger)

	var repos repositories
	if conf.Database.Engine == EngineMemory {
		repos = memoryRepositories(dummydb.Open())
	} else {
		db, err := OpenDB(ctx, conf, opts.Migrate)
		if err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		c.DB = db
		repos = sqlRepositories(db)
	}

	files, err := filestoresvc.New(ctx, conf)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "setting up file storage")
	}
	c.Files = files
	c.Mail = emailsvc.New(conf, logger)
	if conf.Identity.BaseURL == "" {
		logger.Info("identity.baseURL is not set: using the in-memory identity provider")
		c.IdP = identitysvc.NewMemoryProvider()
	} else {
		c.IdP = identitysvc.NewClient(conf.Identity)
	}

	reconciler := member.NewReconciler(c.IdP, conf.Identity.InviteRedirectURL, logger)
	c.Schools = school.NewService(repos.schools, c.IdP, reconciler, logger)
	c.Trainers = trainer.NewService(repos.trainers, repos.tx, reconciler, logger)
	c.Batches = batch.NewService(repos.batches, repos.tx)
	c.Students = student.NewService(repos.students, c.Batches, reconciler, c.Mail, logger)
	c.Courses = course.NewService(repos.courses, repos.tx)
	c.Levels = level.NewService(repos.levels, repos.tx)
	c.Learning = learning.NewService(repos.learning, repos.tx, c.Courses)
	c.Assignments = assignment.NewService(repos.assignments, c.Batches, c.Courses, c.Students, c.Mail, logger)
	c.Progress = progress.NewService(repos.progress)
	c.Profiles = profile.NewService(c.Schools, c.Trainers, c.Students, reconciler, logger)
	c.Uploads = upload.NewService(repos.uploads, files, conf.Storage.MaxUploadSize)
	return c, nil
}

// LocalFiles returns the local storage when it is the configured driver.
func (c *Container) LocalFiles() *filestoresvc.LocalStorage {
	local, _ := c.Files.(*filestoresvc.LocalStorage)
	return local
}

func (c *Container) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Error("closing database", err)
	}
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		tx:          core.NewSQLTransactor(db),
		schools:     sqlxrepos.NewSchoolRepository(db),
		trainers:    sqlxrepos.NewTrainerRepository(db),
		students:    sqlxrepos.NewStudentRepository(db),
		batches:     sqlxrepos.NewBatchRepository(db),
		courses:     sqlxrepos.NewCourseRepository(db),
		levels:      sqlxrepos.NewLevelRepository(db),
		learning:    sqlxrepos.NewLearningRepository(db),
		assignments: sqlxrepos.NewAssignmentRepository(db),
		progress:    sqlxrepos.NewProgressRepository(db),
		uploads:     sqlxrepos.NewUploadRepository(db),
	}
}

func memoryRepositories(db *dummydb.DB) repositories {
	return repositories{
		tx:          &dummydb.Transactor{},
		schools:     dummydb.NewSchoolRepository(db),
		trainers:    dummydb.NewTrainerRepository(db),
		students:    dummydb.NewStudentRepository(db),
		batches:     dummydb.NewBatchRepository(db),
		courses:     dummydb.NewCourseRepository(db),
		levels:      dummydb.NewLevelRepository(db),
		learning:    dummydb.NewLearningRepository(db),
		assignments: dummydb.NewAssignmentRepository(db),
		progress:    dummydb.NewProgressRepository(db),
		uploads:     dummydb.NewUploadRepository(db),
	}
}
