package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/report"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
)

type (
	Options struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc     user.Service
		BranchSvc   branch.Service
		LeadSvc     lead.Service
		FollowUpSvc followup.Service
		VisitSvc    visit.Service
		DocumentSvc document.Service
		ReportSvc   report.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	authed := []echo.MiddlewareFunc{jwt, actorMiddleware(s.opts.UserSvc)}

	registerUserAPI(v1, authed, s.opts.UserSvc, s.opts.Validate, conf)
	registerBranchAPI(v1, authed, s.opts.BranchSvc, s.opts.Validate)
	registerSourceAPI(v1, authed, s.opts.LeadSvc, s.opts.Validate)
	registerLeadAPI(v1, authed, s.opts)
	registerFollowUpAPI(v1, authed, s.opts.FollowUpSvc, s.opts.Validate, conf)
	registerVisitAPI(v1, authed, s.opts.VisitSvc, s.opts.Validate)
	registerDocumentAPI(v1, authed, s.opts.DocumentSvc)
	registerReportAPI(v1, authed, s.opts.ReportSvc, conf)
}

// Start listens on the configured address; listen errors are sent to Errors().
func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
