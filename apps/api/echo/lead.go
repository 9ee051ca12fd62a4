package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
)

const contextLeadKey = "lead"

var errLeadNotFoundInCtx = errors.New("lead object not found in echo.Context")

type leadApi struct {
	svc         lead.Service
	followUpSvc followup.Service
	visitSvc    visit.Service
	documentSvc document.Service
	validate    *validator.Validate
	conf        *core.Config
}

func registerLeadAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := leadApi{
		svc:         opts.LeadSvc,
		followUpSvc: opts.FollowUpSvc,
		visitSvc:    opts.VisitSvc,
		documentSvc: opts.DocumentSvc,
		validate:    opts.Validate,
		conf:        opts.Conf,
	}

	lg := g.Group("/leads", authed...)
	lg.GET("", api.query)
	lg.POST("", api.create)

	dg := lg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.PUT("/status", api.changeStatus)
	dg.PUT("/assign", api.assign)
	dg.GET("/followups", api.queryFollowUps)
	dg.GET("/visits", api.queryVisits)
	dg.POST("/visits", api.createVisit)
	dg.GET("/documents", api.queryDocuments)
	dg.POST("/documents", api.uploadDocument)
}

// objectMiddleware loads the lead named by the :id parameter if the actor may see it.
func (api *leadApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getActor(ctx)
		if err != nil {
			return err
		}
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		l, err := api.svc.Get(ctx.Request().Context(), actor, id)
		if err != nil {
			return errors.Wrap(err, "finding lead by ID")
		}
		ctx.Set(contextLeadKey, l)
		return next(ctx)
	}
}

func getContextLead(ctx echo.Context) (lead.Lead, error) {
	if l, ok := ctx.Get(contextLeadKey).(lead.Lead); ok {
		return l, nil
	}
	return lead.Lead{}, errors.Wrap(errLeadNotFoundInCtx, "retrieving object from context")
}

func (api *leadApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindLeadFilter(ctx, api.conf.Timezone)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying leads")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *leadApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data lead.NewLead
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLead")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating lead")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *leadApi) retrieve(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *leadApi) update(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	var data lead.UpdateLead
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLead")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	l, err = api.svc.Update(ctx.Request().Context(), actor, l, data)
	if err != nil {
		return errors.Wrap(err, "updating lead")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *leadApi) destroy(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, l); err != nil {
		return errors.Wrap(err, "deleting lead")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *leadApi) changeStatus(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	var data lead.StatusChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	l, err = api.svc.ChangeStatus(ctx.Request().Context(), actor, l, data)
	if err != nil {
		return errors.Wrap(err, "changing lead status")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *leadApi) assign(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	var data lead.Assignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Assignment")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	l, err = api.svc.Assign(ctx.Request().Context(), actor, l, data.OwnerID)
	if err != nil {
		return errors.Wrap(err, "assigning lead")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *leadApi) queryFollowUps(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	fus, err := api.followUpSvc.ListByLead(ctx.Request().Context(), actor, l.ID)
	if err != nil {
		return errors.Wrap(err, "listing follow-ups")
	}
	if fus == nil {
		fus = []followup.FollowUp{}
	}
	return ctx.JSON(http.StatusOK, fus)
}

func (api *leadApi) queryVisits(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	visits, err := api.visitSvc.ListByLead(ctx.Request().Context(), actor, l)
	if err != nil {
		return errors.Wrap(err, "listing visits")
	}
	if visits == nil {
		visits = []visit.Visit{}
	}
	return ctx.JSON(http.StatusOK, visits)
}

func (api *leadApi) createVisit(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	var data visit.NewVisit
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVisit")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	v, err := api.visitSvc.Create(ctx.Request().Context(), actor, l, data)
	if err != nil {
		return errors.Wrap(err, "creating visit")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *leadApi) queryDocuments(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	docs, err := api.documentSvc.ListByLead(ctx.Request().Context(), actor, l)
	if err != nil {
		return errors.Wrap(err, "listing documents")
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

// uploadDocument expects a multipart form with the fields kind, visit_id (optional) and file.
func (api *leadApi) uploadDocument(ctx echo.Context) error {
	l, err := getContextLead(ctx)
	if err != nil {
		return err
	}

	data := document.NewDocument{Kind: ctx.FormValue("kind")}
	if val := ctx.FormValue("visit_id"); val != "" {
		visitID, pErr := strconv.ParseInt(val, 10, 64)
		if pErr != nil {
			return core.NewFieldError("visit_id", "must be an integer")
		}
		data.VisitID = &visitID
	}
	fh, err := ctx.FormFile("file")
	if err != nil && err != http.ErrMissingFile {
		return core.NewFieldError("file", "invalid file upload")
	}
	if fh != nil {
		file, oErr := fh.Open()
		if oErr != nil {
			return errors.Wrap(oErr, "opening uploaded file")
		}
		defer file.Close()
		data.FileName = fh.Filename
		data.Size = fh.Size
		data.Content = file
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	doc, err := api.documentSvc.Upload(ctx.Request().Context(), actor, l, data)
	if err != nil {
		return errors.Wrap(err, "uploading document")
	}
	return ctx.JSON(http.StatusCreated, doc)
}
