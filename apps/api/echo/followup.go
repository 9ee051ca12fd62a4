package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

type followUpApi struct {
	svc      followup.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerFollowUpAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc followup.Service,
	validate *validator.Validate,
	conf *core.Config,
) {
	api := followUpApi{svc: svc, validate: validate, conf: conf}

	fg := g.Group("/followups", authed...)
	fg.GET("/agenda", api.agenda)
	fg.GET("/stages", api.stages)
	fg.GET("/:id", api.retrieve)
	fg.POST("/:id/complete", api.complete)
	fg.PUT("/:id/reschedule", api.reschedule)
}

// get returns the follow-up of the path and the actor it was loaded for.
func (api *followUpApi) get(ctx echo.Context) (followup.FollowUp, policy.Actor, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return followup.FollowUp{}, policy.Actor{}, err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return followup.FollowUp{}, policy.Actor{}, err
	}
	fu, err := api.svc.Get(ctx.Request().Context(), actor, id)
	return fu, actor, err
}

// agenda lists the scheduled follow-ups due in [from, to) and those overdue before from.
// Both bounds default to the current day.
func (api *followUpApi) agenda(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	from, err := queryTime(ctx, "from", api.conf.Timezone, false)
	if err != nil {
		return err
	}
	to, err := queryTime(ctx, "to", api.conf.Timezone, true)
	if err != nil {
		return err
	}

	agenda, err := api.svc.Agenda(ctx.Request().Context(), actor, from, to)
	if err != nil {
		return errors.Wrap(err, "getting agenda")
	}
	return ctx.JSON(http.StatusOK, agenda)
}

func (api *followUpApi) stages(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Pipeline())
}

func (api *followUpApi) retrieve(ctx echo.Context) error {
	fu, _, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting follow-up")
	}
	return ctx.JSON(http.StatusOK, fu)
}

func (api *followUpApi) complete(ctx echo.Context) error {
	fu, actor, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting follow-up")
	}
	var data followup.Completion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Completion")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Complete(ctx.Request().Context(), actor, fu, data)
	if err != nil {
		return errors.Wrap(err, "completing follow-up")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *followUpApi) reschedule(ctx echo.Context) error {
	fu, actor, err := api.get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting follow-up")
	}
	var data followup.Reschedule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Reschedule")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	fu, err = api.svc.Reschedule(ctx.Request().Context(), actor, fu, data)
	if err != nil {
		return errors.Wrap(err, "rescheduling follow-up")
	}
	return ctx.JSON(http.StatusOK, fu)
}
