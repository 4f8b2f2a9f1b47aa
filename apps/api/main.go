package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/skoolpay/skoolpay/apps/api/echo"
	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
	"github.com/skoolpay/skoolpay/core/school"
	"github.com/skoolpay/skoolpay/core/student"
	emailsvc "github.com/skoolpay/skoolpay/services/email"
	filestore "github.com/skoolpay/skoolpay/services/filestore"
	gatewaysvc "github.com/skoolpay/skoolpay/services/gateway"
	logsvc "github.com/skoolpay/skoolpay/services/logger"
	"github.com/skoolpay/skoolpay/storage/database"
	sqlxrepos "github.com/skoolpay/skoolpay/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up logger
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up repos
	accountRepo := sqlxrepos.NewAccountRepository(db)
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	studentRepo := sqlxrepos.NewStudentRepository(db)
	planRepo := sqlxrepos.NewPlanRepository(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	files, err := filestore.NewLocalStore(filepath.Join(conf.WorkDir, conf.Plan.UploadDir))
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	var gateway plan.Gateway
	if conf.MidtransServerKey != "" {
		gateway = gatewaysvc.NewMidtransGateway(conf, logger)
	} else {
		gateway = gatewaysvc.NewMockGateway(0)
	}

	accountSvc := account.NewService(accountRepo, mailSvc, conf)
	schoolSvc := school.NewService(schoolRepo)
	studentSvc := student.NewService(studentRepo, accountSvc, student.NewSchoolLookup(schoolRepo))
	planSvc := plan.NewService(planRepo, files, gateway, student.NewDirectory(studentRepo), accountSvc, mailSvc, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	plan.InitValidators(validate, translator)

	account.InitTokenGenerator(conf)
	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			AccountSvc: accountSvc,
			SchoolSvc:  schoolSvc,
			StudentSvc: studentSvc,
			PlanSvc:    planSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	return translator
}
