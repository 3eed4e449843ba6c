package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core/progress"
)

func registerProgressAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	svc := deps.Progress
	g.GET("/progress/summary", func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return err
		}
		var q progress.Query
		if err := ctx.Bind(&q); err != nil {
			return errors.Wrap(err, "binding to progress.Query")
		}
		scope, err := progress.ScopeFor(actor, q)
		if err != nil {
			return err
		}

		summary, err := svc.Summary(ctx.Request().Context(), scope)
		if err != nil {
			return errors.Wrap(err, "summarizing progress")
		}
		return ctx.JSON(http.StatusOK, summary)
	}, tn.required)
}
