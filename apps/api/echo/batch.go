package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/batch"
)

type batchApi struct {
	svc      *batch.Service
	validate *validator.Validate
}

func registerBatchAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := batchApi{svc: deps.Batches, validate: deps.Validate}

	bg := g.Group("/batches", tn.required)
	bg.GET("", api.query)
	bg.POST("", api.create, schoolAdminMiddleware)

	dg := bg.Group("/:id", api.ctxBatchMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, schoolAdminMiddleware)
	dg.DELETE("", api.destroy, schoolAdminMiddleware)
	dg.PUT("/trainers", api.setTrainers, schoolAdminMiddleware)
	dg.PUT("/students", api.setStudents, schoolAdminMiddleware)
	dg.POST("/students", api.addStudents, schoolAdminMiddleware)
}

// Handlers

func (api *batchApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(batch.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []batch.Batch{})
	}
	switch {
	case actor.IsSchoolAdmin():
	case actor.IsTrainer() && actor.TrainerID != "":
		filter.TrainerID = actor.TrainerID
	case actor.IsStudent() && actor.StudentID != "":
		filter.StudentID = actor.StudentID
	default:
		return ctx.JSON(http.StatusOK, []batch.Batch{})
	}
	ordering := parseOrdering(ctx)

	batches, err := api.svc.Query(ctx.Request().Context(), actor.SchoolID, *filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	if batches == nil {
		batches = []batch.Batch{}
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *batchApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}

	var data batch.NewBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	if err := data.Validate(ctx.Request().Context(), actor.SchoolID, api.validate, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), actor.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *batchApi) retrieve(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) update(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data batch.UpdateBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBatch")
	}
	if err := data.Validate(ctx.Request().Context(), b, api.validate, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Update(ctx.Request().Context(), b, data)
	if err != nil {
		return errors.Wrap(err, "updating batch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) destroy(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), b.SchoolID, b.ID); err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *batchApi) bindMembers(ctx echo.Context, b batch.Batch) (batch.SetMembers, error) {
	var data batch.SetMembers
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to SetMembers")
	}
	err := data.Validate(ctx.Request().Context(), b.SchoolID, api.validate, api.svc)
	return data, err
}

func (api *batchApi) setTrainers(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	data, err := api.bindMembers(ctx, b)
	if err != nil {
		return err
	}

	b, err = api.svc.SetTrainers(ctx.Request().Context(), b, data.TrainerIDs)
	if err != nil {
		return errors.Wrap(err, "setting batch trainers")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) setStudents(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	data, err := api.bindMembers(ctx, b)
	if err != nil {
		return err
	}

	b, err = api.svc.SetStudents(ctx.Request().Context(), b, data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "setting batch students")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) addStudents(ctx echo.Context) error {
	b, ok := ctx.Get("object").(batch.Batch)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	data, err := api.bindMembers(ctx, b)
	if err != nil {
		return err
	}

	b, err = api.svc.AddStudents(ctx.Request().Context(), b, data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "adding batch students")
	}
	return ctx.JSON(http.StatusOK, b)
}

// ctxBatchMiddleware loads the Batch of the path into the context.
// Trainers and students only see the batches they belong to.
func (api *batchApi) ctxBatchMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context actor")
		}

		b, err := api.svc.Get(ctx.Request().Context(), actor.SchoolID, ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding batch by ID")
		}

		switch {
		case actor.IsSchoolAdmin():
		case actor.TrainerID != "" && contains(b.TrainerIDs, actor.TrainerID):
		case actor.StudentID != "" && contains(b.StudentIDs, actor.StudentID):
		default:
			return errHttpNotFound
		}
		ctx.Set("object", b)
		return next(ctx)
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
