package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

type sourceApi struct {
	svc      lead.Service
	validate *validator.Validate
}

func registerSourceAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc lead.Service, validate *validator.Validate) {
	api := sourceApi{svc: svc, validate: validate}
	manage := allowMiddleware(policy.ManageReferences)

	sg := g.Group("/sources", authed...)
	sg.GET("", api.query)
	sg.POST("", api.create, manage)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, manage)
	sg.DELETE("/:id", api.destroy, manage)
}

func (api *sourceApi) query(ctx echo.Context) error {
	active, err := queryBool(ctx, "active")
	if err != nil {
		return err
	}
	sources, err := api.svc.QuerySources(ctx.Request().Context(), active != nil && *active)
	if err != nil {
		return errors.Wrap(err, "querying sources")
	}
	if sources == nil {
		sources = []lead.Source{}
	}
	return ctx.JSON(http.StatusOK, sources)
}

func (api *sourceApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data lead.SourceData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SourceData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	src, err := api.svc.CreateSource(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating source")
	}
	return ctx.JSON(http.StatusCreated, src)
}

func (api *sourceApi) get(ctx echo.Context) (lead.Source, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return lead.Source{}, err
	}
	return api.svc.GetSource(ctx.Request().Context(), id)
}

func (api *sourceApi) retrieve(ctx echo.Context) error {
	src, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	return ctx.JSON(http.StatusOK, src)
}

func (api *sourceApi) update(ctx echo.Context) error {
	src, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	var data lead.SourceData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SourceData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	src, err = api.svc.UpdateSource(ctx.Request().Context(), actor, src, data)
	if err != nil {
		return errors.Wrap(err, "updating source")
	}
	return ctx.JSON(http.StatusOK, src)
}

func (api *sourceApi) destroy(ctx echo.Context) error {
	src, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSource(ctx.Request().Context(), actor, src.ID); err != nil {
		return errors.Wrap(err, "deleting source")
	}
	return ctx.NoContent(http.StatusNoContent)
}
