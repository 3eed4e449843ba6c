package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/level"
)

type levelApi struct {
	svc      *level.Service
	validate *validator.Validate
}

func registerLevelAPI(g *echo.Group, deps ServerDeps) {
	api := levelApi{svc: deps.Levels, validate: deps.Validate}

	lg := g.Group("/levels")
	lg.GET("", api.query)
	lg.POST("", api.create, platformAdminMiddleware)

	dg := lg.Group("/:id", api.ctxLevelMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, platformAdminMiddleware)
	dg.DELETE("", api.destroy, platformAdminMiddleware)
	dg.PUT("/courses", api.setCourses, platformAdminMiddleware)
}

// Handlers

func (api *levelApi) query(ctx echo.Context) error {
	levels, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	if levels == nil {
		levels = []level.Level{}
	}
	return ctx.JSON(http.StatusOK, levels)
}

func (api *levelApi) create(ctx echo.Context) error {
	var data level.NewLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLevel")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	l, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating level")
	}
	if l.CourseIDs == nil {
		l.CourseIDs = []string{}
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *levelApi) retrieve(ctx echo.Context) error {
	l, ok := ctx.Get("object").(level.Level)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *levelApi) update(ctx echo.Context) error {
	l, ok := ctx.Get("object").(level.Level)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data level.UpdateLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLevel")
	}
	if err := data.Validate(ctx.Request().Context(), l, api.validate, api.svc); err != nil {
		return err
	}

	l, err := api.svc.Update(ctx.Request().Context(), l, data)
	if err != nil {
		return errors.Wrap(err, "updating level")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *levelApi) destroy(ctx echo.Context) error {
	l, ok := ctx.Get("object").(level.Level)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), l.ID); err != nil {
		return errors.Wrap(err, "deleting level")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *levelApi) setCourses(ctx echo.Context) error {
	l, ok := ctx.Get("object").(level.Level)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data level.SetCourses
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetCourses")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	l, err := api.svc.SetCourses(ctx.Request().Context(), l, data.CourseIDs)
	if err != nil {
		return errors.Wrap(err, "setting level courses")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *levelApi) ctxLevelMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		l, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding level by ID")
		}
		ctx.Set("object", l)
		return next(ctx)
	}
}
