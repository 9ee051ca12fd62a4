package echoapi

import (
	"bytes"
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/report"
)

const csvContentType = "text/csv; charset=utf-8"

type reportApi struct {
	svc  report.Service
	conf *core.Config
}

func registerReportAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc report.Service, conf *core.Config) {
	api := reportApi{svc: svc, conf: conf}

	rg := g.Group("/reports", authed...)
	rg.GET("/dashboard", api.dashboard)
	rg.GET("/leads.csv", api.exportLeads)
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var f report.Filter
	if f.From, err = queryTime(ctx, "from", api.conf.Timezone, false); err != nil {
		return err
	}
	if f.To, err = queryTime(ctx, "to", api.conf.Timezone, true); err != nil {
		return err
	}
	if f.BranchID, err = queryInt64(ctx, "branch_id"); err != nil {
		return err
	}

	dash, err := api.svc.Dashboard(ctx.Request().Context(), actor, f)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *reportApi) exportLeads(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindLeadFilter(ctx, api.conf.Timezone)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = api.svc.ExportLeads(ctx.Request().Context(), actor, filter, &buf); err != nil {
		return errors.Wrap(err, "exporting leads")
	}

	name := "leads-" + time.Now().In(api.location()).Format("20060102") + ".csv"
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ctx.Blob(http.StatusOK, csvContentType, buf.Bytes())
}

func (api *reportApi) location() *time.Location {
	if api.conf.Timezone != nil {
		return api.conf.Timezone
	}
	return time.UTC
}
