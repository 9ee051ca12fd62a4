package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/followup"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
	appfs "github.com/arishrdi/leads-aladdin-sub001/fs"
	"github.com/arishrdi/leads-aladdin-sub001/services/email"
	"github.com/arishrdi/leads-aladdin-sub001/services/logger"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database"
	"github.com/arishrdi/leads-aladdin-sub001/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	defer db.Close()
	if err = database.Ping(context.Background(), db); err != nil {
		logger.Error(fmt.Sprintf("pinging database: %v", err), err)
		return 1
	}

	// set up services
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile, logger)

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	pipeline, err := followup.LoadPipeline(appfs.FS, appfs.PipelineFile, conf.Pipeline.File)
	if err != nil {
		logger.Error(fmt.Sprintf("loading pipeline: %v", err), err)
		return 1
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	branchRepo := sqlxrepos.NewBranchRepository(db)
	leadRepo := sqlxrepos.NewLeadRepository(db)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:        conf,
		db:          db,
		usrRepo:     usrRepo,
		usrSvc:      user.NewService(db, usrRepo, branchRepo, mailSvc, conf),
		followUpSvc: followup.NewService(db, sqlxrepos.NewFollowUpRepository(db), leadRepo, usrRepo, pipeline, mailSvc, conf),
		mailSvc:     mailSvc,
		validate:    validate,
		translator:  translator,
		logger:      logger,
	}
	if err := cli.run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		return 1
	}
	return 0
}
