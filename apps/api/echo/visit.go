package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
)

type visitApi struct {
	svc      visit.Service
	validate *validator.Validate
}

func registerVisitAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc visit.Service, validate *validator.Validate) {
	api := visitApi{svc: svc, validate: validate}
	manage := allowMiddleware(policy.ManageReferences)

	cg := g.Group("/checklist", authed...)
	cg.GET("", api.queryCategories)
	cg.POST("", api.createCategory, manage)
	cg.GET("/:id", api.retrieveCategory)
	cg.PUT("/:id", api.updateCategory, manage)
	cg.DELETE("/:id", api.destroyCategory, manage)

	vg := g.Group("/visits", authed...)
	vg.GET("/:id", api.retrieve)
	vg.PUT("/:id", api.update)
	vg.DELETE("/:id", api.destroy)
}

// Checklist

func (api *visitApi) queryCategories(ctx echo.Context) error {
	active, err := queryBool(ctx, "active")
	if err != nil {
		return err
	}
	cats, err := api.svc.Categories(ctx.Request().Context(), active != nil && *active)
	if err != nil {
		return errors.Wrap(err, "querying checklist categories")
	}
	if cats == nil {
		cats = []visit.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *visitApi) createCategory(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data visit.CategoryData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CategoryData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	cat, err := api.svc.CreateCategory(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating checklist category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *visitApi) getCategory(ctx echo.Context) (visit.Category, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return visit.Category{}, err
	}
	return api.svc.GetCategory(ctx.Request().Context(), id)
}

func (api *visitApi) retrieveCategory(ctx echo.Context) error {
	cat, err := api.getCategory(ctx)
	if err != nil {
		return errors.Wrap(err, "getting checklist category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *visitApi) updateCategory(ctx echo.Context) error {
	cat, err := api.getCategory(ctx)
	if err != nil {
		return errors.Wrap(err, "getting checklist category")
	}
	var data visit.CategoryData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CategoryData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	cat, err = api.svc.UpdateCategory(ctx.Request().Context(), actor, cat, data)
	if err != nil {
		return errors.Wrap(err, "updating checklist category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *visitApi) destroyCategory(ctx echo.Context) error {
	cat, err := api.getCategory(ctx)
	if err != nil {
		return errors.Wrap(err, "getting checklist category")
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCategory(ctx.Request().Context(), actor, cat.ID); err != nil {
		return errors.Wrap(err, "deleting checklist category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Visits

func (api *visitApi) get(ctx echo.Context) (visit.Visit, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return visit.Visit{}, err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return visit.Visit{}, err
	}
	return api.svc.Get(ctx.Request().Context(), actor, id)
}

func (api *visitApi) retrieve(ctx echo.Context) error {
	v, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting visit")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *visitApi) update(ctx echo.Context) error {
	v, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting visit")
	}
	var data visit.UpdateVisit
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateVisit")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	v, err = api.svc.Update(ctx.Request().Context(), actor, v, data)
	if err != nil {
		return errors.Wrap(err, "updating visit")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *visitApi) destroy(ctx echo.Context) error {
	v, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting visit")
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, v); err != nil {
		return errors.Wrap(err, "deleting visit")
	}
	return ctx.NoContent(http.StatusNoContent)
}
