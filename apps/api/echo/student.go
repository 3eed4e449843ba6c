package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/student"
)

const importFileField = "file"

type studentApi struct {
	svc        *student.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerStudentAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := studentApi{svc: deps.Students, validate: deps.Validate, translator: deps.Translator}

	sg := g.Group("/students", tn.required)
	sg.GET("", api.query)
	sg.POST("", api.create, schoolAdminMiddleware)
	sg.POST("/import", api.importCSV, schoolAdminMiddleware)

	dg := sg.Group("/:id", api.ctxStudentMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, schoolAdminMiddleware)
	dg.DELETE("", api.destroy, schoolAdminMiddleware)
}

// scopeFilter restricts `filter` to the students the Actor may see.
// It returns false when the Actor may not see any.
func scopeFilter(actor member.Actor, filter *student.QueryFilter) bool {
	switch {
	case actor.IsSchoolAdmin():
		return true
	case actor.IsTrainer() && actor.TrainerID != "":
		filter.TrainerID = actor.TrainerID
		return true
	case actor.IsStudent() && actor.StudentID != "":
		filter.IDs = []string{actor.StudentID}
		return true
	}
	return false
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	if !scopeFilter(actor, filter) {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	ordering := parseOrdering(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), actor.SchoolID, *filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}

	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(ctx.Request().Context(), sch.ID, api.validate, api.svc); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) importCSV(ctx echo.Context) error {
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return errMissingFile
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	report, err := api.svc.Import(ctx.Request().Context(), sch, f, ctx.FormValue("batchId"), api.validate, api.translator)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	s, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(ctx.Request().Context(), s, api.validate, api.svc); err != nil {
		return err
	}

	s, err = api.svc.Update(ctx.Request().Context(), sch, s, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	s, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	sch, err := getSchool(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch, s); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxStudentMiddleware loads the Student of the path into the context, for the admins of the school,
// the trainers of the student's batches and the student themself.
func (api *studentApi) ctxStudentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context actor")
		}

		id := ctx.Param("id")
		visible := actor.IsSchoolAdmin() || (actor.StudentID != "" && id == actor.StudentID)
		if !visible && actor.IsTrainer() && actor.TrainerID != "" {
			filter := student.QueryFilter{TrainerID: actor.TrainerID, IDs: []string{id}}
			students, err := api.svc.Query(ctx.Request().Context(), actor.SchoolID, filter, nil)
			if err != nil {
				return errors.Wrap(err, "querying trainer's students")
			}
			visible = len(students) > 0
		}

		if visible {
			s, err := api.svc.Get(ctx.Request().Context(), actor.SchoolID, member.Lookup{ID: id})
			if err == nil {
				ctx.Set("object", s)
				return next(ctx)
			} else if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding student by ID")
			}
		}
		return errHttpNotFound
	}
}
