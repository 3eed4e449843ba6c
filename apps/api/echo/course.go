package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/course"
	"github.com/trezcool/somesha/core/member"
)

type courseApi struct {
	svc      *course.Service
	tn       *tenancy
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := courseApi{svc: deps.Courses, tn: tn, validate: deps.Validate}

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.POST("", api.create, platformAdminMiddleware)

	dg := cg.Group("/:id", api.ctxCourseMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, platformAdminMiddleware)
	dg.DELETE("", api.destroy, platformAdminMiddleware)
	dg.GET("/lessons", api.queryLessons)
	dg.POST("/lessons", api.addLesson, platformAdminMiddleware)
	dg.GET("/quizzes", api.queryQuizzes)
	dg.POST("/quizzes", api.addQuiz, platformAdminMiddleware)

	lg := g.Group("/lessons/:id", platformAdminMiddleware, api.ctxLessonMiddleware)
	lg.PUT("", api.updateLesson)
	lg.DELETE("", api.destroyLesson)

	qg := g.Group("/quizzes/:id", api.ctxQuizMiddleware)
	qg.GET("", api.retrieveQuiz)
	qg.PUT("", api.updateQuiz, platformAdminMiddleware)
	qg.DELETE("", api.destroyQuiz, platformAdminMiddleware)
}

// seesAnswers tells whether the Principal may see the answer keys of quizzes.
func seesAnswers(p member.Principal) bool {
	return p.IsPlatformAdmin() || p.IsCoordinator() || p.IsTrainer()
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	if !p.IsPlatformAdmin() {
		published := true
		filter.Published = &published
	}
	if filter.Mine && (p.IsStudent() || p.IsTrainer()) {
		actor, err := api.tn.actor(ctx)
		if err != nil {
			return err
		}
		filter.StudentID, filter.TrainerID = actor.StudentID, actor.TrainerID
		if filter.StudentID == "" && filter.TrainerID == "" {
			return ctx.JSON(http.StatusOK, []course.Course{})
		}
	}
	ordering := parseOrdering(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), *filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(ctx.Request().Context(), c, api.validate, api.svc); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryLessons(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data course.LessonInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.AddLesson(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	l, ok := ctx.Get("object").(course.Lesson)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data course.LessonInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.UpdateLesson(ctx.Request().Context(), l, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	l, ok := ctx.Get("object").(course.Lesson)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.DeleteLesson(ctx.Request().Context(), l); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryQuizzes(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}

	quizzes, err := api.svc.QueryQuizzes(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	if quizzes == nil {
		quizzes = []course.Quiz{}
	}
	if !seesAnswers(p) {
		for i := range quizzes {
			quizzes[i] = quizzes[i].Public()
		}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *courseApi) addQuiz(ctx echo.Context) error {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data course.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(ctx.Request().Context(), c.ID, api.validate, api.svc); err != nil {
		return err
	}

	q, err := api.svc.AddQuiz(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "adding quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *courseApi) retrieveQuiz(ctx echo.Context) error {
	q, ok := ctx.Get("object").(course.Quiz)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	if !seesAnswers(p) {
		q = q.Public()
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *courseApi) updateQuiz(ctx echo.Context) error {
	q, ok := ctx.Get("object").(course.Quiz)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data course.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(ctx.Request().Context(), q.CourseID, api.validate, api.svc); err != nil {
		return err
	}

	q, err := api.svc.UpdateQuiz(ctx.Request().Context(), q, data)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *courseApi) destroyQuiz(ctx echo.Context) error {
	q, ok := ctx.Get("object").(course.Quiz)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.DeleteQuiz(ctx.Request().Context(), q.ID); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// visible reports whether the Principal may see the content of the course.
// Unpublished courses are only visible to platform admins.
func (api *courseApi) visible(ctx echo.Context, courseID string) (course.Course, bool, error) {
	p, err := getPrincipal(ctx)
	if err != nil {
		return course.Course{}, false, err
	}
	c, err := api.svc.Get(ctx.Request().Context(), courseID)
	if err != nil {
		if core.IsNotFound(err) {
			return course.Course{}, false, nil
		}
		return course.Course{}, false, errors.Wrap(err, "finding course by ID")
	}
	return c, c.IsPublished || p.IsPlatformAdmin(), nil
}

func (api *courseApi) ctxCourseMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		c, ok, err := api.visible(ctx, ctx.Param("id"))
		if err != nil {
			return err
		}
		if !ok {
			return errHttpNotFound
		}
		ctx.Set("object", c)
		return next(ctx)
	}
}

func (api *courseApi) ctxLessonMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		l, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding lesson by ID")
		}
		ctx.Set("object", l)
		return next(ctx)
	}
}

func (api *courseApi) ctxQuizMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		q, err := api.svc.GetQuiz(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding quiz by ID")
		}
		if _, ok, err := api.visible(ctx, q.CourseID); err != nil {
			return err
		} else if !ok {
			return errHttpNotFound
		}
		ctx.Set("object", q)
		return next(ctx)
	}
}
