package echoapi

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core/document"
)

type documentApi struct {
	svc document.Service
}

func registerDocumentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc document.Service) {
	api := documentApi{svc: svc}

	dg := g.Group("/documents", authed...)
	dg.GET("/:id", api.retrieve)
	dg.GET("/:id/download", api.download)
	dg.DELETE("/:id", api.destroy)
}

func (api *documentApi) retrieve(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	doc, err := api.svc.Get(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "getting document")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *documentApi) download(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	doc, content, err := api.svc.Download(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "downloading document")
	}
	defer content.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName})
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ctx.Stream(http.StatusOK, doc.ContentType, content)
}

func (api *documentApi) destroy(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	doc, err := api.svc.Get(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "getting document")
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, doc); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return ctx.NoContent(http.StatusNoContent)
}
