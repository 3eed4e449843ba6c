package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/school"
)

type schoolApi struct {
	svc        *school.Service
	tn         *tenancy
	validate   *validator.Validate
	translator ut.Translator
}

func registerSchoolAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := schoolApi{
		svc:        deps.Schools,
		tn:         tn,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	sg := g.Group("/schools")
	sg.GET("", api.query)
	sg.POST("", api.create, platformAdminMiddleware)

	dg := sg.Group("/:id", api.ctxSchoolMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, platformAdminMiddleware)

	cg := g.Group("/coordinators", tn.required, schoolAdminMiddleware)
	cg.GET("", api.queryCoordinators)
	cg.POST("", api.addCoordinator)
	cg.DELETE("/:id", api.removeCoordinator)
}

// Handlers

func (api *schoolApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	if !p.IsPlatformAdmin() {
		actor, err := api.tn.actor(ctx)
		if err != nil {
			return err
		}
		sch, err := api.svc.GetByID(ctx.Request().Context(), actor.SchoolID)
		if err != nil {
			return errors.Wrap(err, "getting own school")
		}
		return ctx.JSON(http.StatusOK, []school.School{sch})
	}

	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	ordering := parseOrdering(ctx)

	schools, err := api.svc.QueryAll(ctx.Request().Context(), *filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(school.School)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(school.School)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}

	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	// only platform admins (de)activate schools
	if data.IsActive != nil && !p.IsPlatformAdmin() {
		return errHttpForbidden
	}
	if err := data.Validate(ctx.Request().Context(), sch, api.validate, api.svc); err != nil {
		return err
	}

	sch, err = api.svc.Update(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(school.School)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) queryCoordinators(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	coords, err := api.svc.QueryCoordinators(ctx.Request().Context(), actor.SchoolID)
	if err != nil {
		return errors.Wrap(err, "querying coordinators")
	}
	if coords == nil {
		coords = []school.Coordinator{}
	}
	return ctx.JSON(http.StatusOK, coords)
}

func (api *schoolApi) addCoordinator(ctx echo.Context) error {
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}

	var data school.NewCoordinator
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCoordinator")
	}
	if err := data.Validate(ctx.Request().Context(), sch.ID, api.validate, api.svc); err != nil {
		return err
	}

	coord, err := api.svc.AddCoordinator(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "adding coordinator")
	}
	return ctx.JSON(http.StatusCreated, coord)
}

func (api *schoolApi) removeCoordinator(ctx echo.Context) error {
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.RemoveCoordinator(ctx.Request().Context(), sch, ctx.Param("id"), actor.UserID); err != nil {
		return errors.Wrap(err, "removing coordinator")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxSchoolMiddleware loads the School of the path into the context,
// for platform admins and the coordinators of that school.
func (api *schoolApi) ctxSchoolMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return err
		}

		sch, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding school by ID")
		}

		if p.IsPlatformAdmin() {
			ctx.Set("object", sch)
			return next(ctx)
		}
		if p.OrgID == sch.OrgID && p.IsCoordinator() {
			actor, err := api.tn.actor(ctx)
			if err != nil {
				return err
			}
			if actor.IsSchoolAdmin() {
				ctx.Set("object", sch)
				return next(ctx)
			}
		}
		return errHttpNotFound
	}
}
