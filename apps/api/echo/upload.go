package echoapi

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/upload"
	filestoresvc "github.com/trezcool/somesha/services/filestore"
)

const uploadFileField = "file"

type uploadApi struct {
	svc      *upload.Service
	validate *validator.Validate
}

func registerUploadAPI(g *echo.Group, tn *tenancy, deps ServerDeps) {
	api := uploadApi{svc: deps.Uploads, validate: deps.Validate}

	maxSize := deps.Conf.Storage.MaxUploadSize
	if maxSize <= 0 {
		maxSize = upload.DefaultMaxSize
	}
	// leave room for the multipart envelope: the file size itself is checked by the service
	bodyLimit := middleware.BodyLimit(strconv.FormatInt(maxSize+1<<20, 10))

	ug := g.Group("/uploads", tn.optional)
	ug.POST("", api.create, bodyLimit)
	ug.DELETE("/*", api.destroy)
}

// Handlers

func (api *uploadApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}

	data := upload.NewUpload{Kind: strings.TrimSpace(ctx.FormValue("kind"))}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	fh, err := ctx.FormFile(uploadFileField)
	if err != nil {
		return errMissingFile
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	data.Filename = fh.Filename
	data.Size = fh.Size
	data.Body = f

	u, err := api.svc.Store(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "storing upload")
	}
	return ctx.JSON(http.StatusCreated, u)
}

func (api *uploadApi) destroy(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	key := path.Clean("/" + ctx.Param("*"))[1:]
	if key == "" {
		return errHttpNotFound
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, key); err != nil {
		return errors.Wrap(err, "deleting upload")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// serveLocalFile serves the objects of the local storage driver to the holders of a signed URL.
func serveLocalFile(store *filestoresvc.LocalStorage) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		f, err := store.Open(ctx.Param("*"), ctx.QueryParam("token"))
		if err != nil {
			switch errors.Cause(err) {
			case filestoresvc.ErrInvalidToken:
				return errHttpForbidden
			case filestoresvc.ErrInvalidKey:
				return errHttpNotFound
			}
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "opening stored file")
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return errors.Wrap(err, "reading stored file info")
		}
		ctx.Response().Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeContent(ctx.Response(), ctx.Request(), fi.Name(), fi.ModTime(), f)
		return nil
	}
}
