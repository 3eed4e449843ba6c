package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/trainer"
)

type trainerApi struct {
	svc      *trainer.Service
	validate *validator.Validate
}

func registerTrainerAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := trainerApi{svc: deps.Trainers, validate: deps.Validate}

	tg := g.Group("/trainers", tn.required)
	tg.GET("", api.query, schoolAdminMiddleware)
	tg.POST("", api.create, schoolAdminMiddleware)

	dg := tg.Group("/:id", api.ctxTrainerOrAdminMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, schoolAdminMiddleware)
	dg.POST("/verify", api.verify, schoolAdminMiddleware)
	dg.POST("/unverify", api.unverify, schoolAdminMiddleware)
	dg.PUT("/levels", api.setLevels, schoolAdminMiddleware)
}

// Handlers

func (api *trainerApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(trainer.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []trainer.Trainer{})
	}
	ordering := parseOrdering(ctx)

	trainers, err := api.svc.Query(ctx.Request().Context(), actor.SchoolID, *filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying trainers")
	}
	if trainers == nil {
		trainers = []trainer.Trainer{}
	}
	return ctx.JSON(http.StatusOK, trainers)
}

func (api *trainerApi) create(ctx echo.Context) error {
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}

	var data trainer.NewTrainer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTrainer")
	}
	if err := data.Validate(ctx.Request().Context(), sch.ID, api.validate, api.svc); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "creating trainer")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *trainerApi) retrieve(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainerApi) update(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data trainer.UpdateTrainer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTrainer")
	}
	if err := data.Validate(ctx.Request().Context(), t, api.validate, api.svc); err != nil {
		return err
	}

	t, err := api.svc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating trainer")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainerApi) destroy(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch, t); err != nil {
		return errors.Wrap(err, "deleting trainer")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trainerApi) verify(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	t, err := api.svc.Verify(ctx.Request().Context(), t.SchoolID, t.ID)
	if err != nil {
		return errors.Wrap(err, "verifying trainer")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainerApi) unverify(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	t, err := api.svc.Unverify(ctx.Request().Context(), t.SchoolID, t.ID)
	if err != nil {
		return errors.Wrap(err, "unverifying trainer")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainerApi) setLevels(ctx echo.Context) error {
	t, ok := ctx.Get("object").(trainer.Trainer)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data trainer.SetLevels
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetLevels")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	t, err := api.svc.SetLevels(ctx.Request().Context(), t, data.LevelIDs)
	if err != nil {
		return errors.Wrap(err, "setting trainer levels")
	}
	return ctx.JSON(http.StatusOK, t)
}

// ctxTrainerOrAdminMiddleware loads the Trainer of the path into the context,
// for the admins of the school and the trainer themself.
func (api *trainerApi) ctxTrainerOrAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context actor")
		}

		id := ctx.Param("id")
		if actor.IsSchoolAdmin() || (actor.TrainerID != "" && id == actor.TrainerID) {
			t, err := api.svc.Get(ctx.Request().Context(), actor.SchoolID, member.Lookup{ID: id})
			if err == nil {
				ctx.Set("object", t)
				return next(ctx)
			} else if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding trainer by ID")
			}
		}
		return errHttpNotFound
	}
}
