package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core/learning"
	"github.com/trezcool/somesha/core/member"
)

type learningApi struct {
	svc      *learning.Service
	validate *validator.Validate
}

func registerLearningAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := learningApi{svc: deps.Learning, validate: deps.Validate}

	g.POST("/lessons/:id/complete", api.completeLesson, tn.required, studentMiddleware)
	g.DELETE("/lessons/:id/complete", api.uncompleteLesson, tn.required, studentMiddleware)
	g.POST("/quizzes/:id/attempts", api.submitAttempt, tn.required, studentMiddleware)
	g.GET("/quizzes/:id/attempts", api.queryAttempts, tn.required)
}

// studentMiddleware only lets the students of the resolved school through.
func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context actor")
		}
		if actor.StudentID == "" {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// Handlers

func (api *learningApi) completeLesson(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	lc, created, err := api.svc.CompleteLesson(ctx.Request().Context(), actor.StudentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	if created {
		return ctx.JSON(http.StatusCreated, lc)
	}
	return ctx.JSON(http.StatusOK, lc)
}

func (api *learningApi) uncompleteLesson(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.UncompleteLesson(ctx.Request().Context(), actor.StudentID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "uncompleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *learningApi) submitAttempt(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}

	var data learning.NewAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttempt")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	attempt, err := api.svc.SubmitAttempt(ctx.Request().Context(), actor.StudentID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusCreated, attempt)
}

func (api *learningApi) queryAttempts(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(learning.AttemptFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []learning.QuizAttempt{})
	}
	if !scopeAttempts(actor, filter) {
		return errHttpForbidden
	}

	attempts, err := api.svc.QueryAttempts(ctx.Request().Context(), ctx.Param("id"), *filter)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []learning.QuizAttempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

// scopeAttempts restricts `filter` to the attempts the Actor may see:
// students their own, trainers those of their batches' students and admins those of the school.
func scopeAttempts(actor member.Actor, filter *learning.AttemptFilter) bool {
	filter.SchoolID = actor.SchoolID
	switch {
	case actor.IsSchoolAdmin():
	case actor.IsTrainer() && actor.TrainerID != "":
		filter.TrainerID = actor.TrainerID
	case actor.StudentID != "":
		filter.StudentID = actor.StudentID
	default:
		return false
	}
	return true
}
