package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/arishrdi/leads-aladdin-sub001/apps/api/echo"
	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/branch"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
	"github.com/arishrdi/leads-aladdin-sub001/core/report"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	"github.com/arishrdi/leads-aladdin-sub001/core/visit"
	appfs "github.com/arishrdi/leads-aladdin-sub001/fs"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/services/logger"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database/sqlx"
	"github.com/arishrdi/leads-aladdin-sub001/storage/files"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZapLogger(conf *core.Config) *zap.Logger {
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	return zl
}

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}
		if err = database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newPipeline(conf *core.Config) (*followup.Pipeline, error) {
	return followup.LoadPipeline(appfs.FS, appfs.PipelineFile, conf.Pipeline.File)
}

func newScheduler(svc followup.Service) lead.Scheduler { return svc }

// newValidator registers the custom validations and their translations.
func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	lead.InitValidators(validate, translator)
	document.InitValidators(validate, translator)
	return validate
}

type serverParams struct {
	dig.In

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

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		UserSvc:     p.UserSvc,
		BranchSvc:   p.BranchSvc,
		LeadSvc:     p.LeadSvc,
		FollowUpSvc: p.FollowUpSvc,
		VisitSvc:    p.VisitSvc,
		DocumentSvc: p.DocumentSvc,
		ReportSvc:   p.ReportSvc,
	})
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(newConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newPipeline))
	must(c.Provide(files.NewLocalStore, dig.As(new(document.FileStore))))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewBranchRepository, dig.As(new(branch.Repository), new(user.BranchChecker))))
	must(c.Provide(sqlxrepos.NewLeadRepository, dig.As(new(lead.Repository))))
	must(c.Provide(sqlxrepos.NewFollowUpRepository, dig.As(new(followup.Repository))))
	must(c.Provide(sqlxrepos.NewVisitRepository, dig.As(new(visit.Repository))))
	must(c.Provide(sqlxrepos.NewDocumentRepository, dig.As(new(document.Repository))))
	must(c.Provide(sqlxrepos.NewReportRepository, dig.As(new(report.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(branch.NewService))
	must(c.Provide(followup.NewService))
	must(c.Provide(newScheduler))
	must(c.Provide(document.NewPurger))
	must(c.Provide(lead.NewService))
	must(c.Provide(visit.NewService))
	must(c.Provide(document.NewService))
	must(c.Provide(report.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
