package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

type branchApi struct {
	svc      branch.Service
	validate *validator.Validate
}

func registerBranchAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc branch.Service, validate *validator.Validate) {
	api := branchApi{svc: svc, validate: validate}
	manage := allowMiddleware(policy.ManageBranches)

	bg := g.Group("/branches", authed...)
	bg.GET("", api.query)
	bg.POST("", api.create, manage)
	bg.GET("/:id", api.retrieve)
	bg.PUT("/:id", api.update, manage)
	bg.DELETE("/:id", api.destroy, manage)
	bg.GET("/:id/users", api.queryUsers)
}

func (api *branchApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := &branch.QueryFilter{Search: ctx.QueryParam("search")}
	if filter.IsActive, err = queryBool(ctx, "is_active"); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	branches, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}
	if branches == nil {
		branches = []branch.Branch{}
	}
	return ctx.JSON(http.StatusOK, branches)
}

func (api *branchApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data branch.NewBranch
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBranch")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating branch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *branchApi) get(ctx echo.Context) (branch.Branch, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return branch.Branch{}, err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return branch.Branch{}, err
	}
	return api.svc.Get(ctx.Request().Context(), actor, id)
}

func (api *branchApi) retrieve(ctx echo.Context) error {
	b, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting branch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *branchApi) update(ctx echo.Context) error {
	b, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting branch")
	}
	var data branch.UpdateBranch
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBranch")
	}
	if err = data.Validate(ctx.Request().Context(), b, api.validate, api.svc); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	b, err = api.svc.Update(ctx.Request().Context(), actor, b, data)
	if err != nil {
		return errors.Wrap(err, "updating branch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *branchApi) destroy(ctx echo.Context) error {
	b, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting branch")
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, b.ID); err != nil {
		return errors.Wrap(err, "deleting branch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *branchApi) queryUsers(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	users, err := api.svc.ListUsers(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "listing branch users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}
