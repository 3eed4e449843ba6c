package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// registerProfileAPI serves /sync/me, which links the caller with the role record of their school.
func registerProfileAPI(g *echo.Group, deps ServerDeps) {
	svc := deps.Profiles
	sync := func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return err
		}
		res, err := svc.Sync(ctx.Request().Context(), p)
		if err != nil {
			return errors.Wrap(err, "syncing profile")
		}
		return ctx.JSON(http.StatusOK, res)
	}
	g.GET("/sync/me", sync)
	g.POST("/sync/me", sync)
}
