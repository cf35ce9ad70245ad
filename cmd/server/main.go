package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/repository/memory"
	"github.com/mamadbah2/farmledger/internal/repository/mongodb"
	redisrepo "github.com/mamadbah2/farmledger/internal/repository/redis"
	"github.com/mamadbah2/farmledger/internal/repository/sheets"
	"github.com/mamadbah2/farmledger/internal/scheduler"
	"github.com/mamadbah2/farmledger/internal/server/handlers"
	"github.com/mamadbah2/farmledger/internal/server/router"
	"github.com/mamadbah2/farmledger/internal/service/dashboard"
	"github.com/mamadbah2/farmledger/internal/service/export"
	ledgersvc "github.com/mamadbah2/farmledger/internal/service/ledger"
	"github.com/mamadbah2/farmledger/internal/service/notify"
	reportingsvc "github.com/mamadbah2/farmledger/internal/service/reporting"
	"github.com/mamadbah2/farmledger/internal/service/sales"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
	ledgerclient "github.com/mamadbah2/farmledger/pkg/clients/ledger"
	whatsappclient "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
	"github.com/mamadbah2/farmledger/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	loc := cfg.Dashboard.Location()
	currency := sales.Currency{Decimals: cfg.Ledger.CurrencyDecimals, Symbol: cfg.Ledger.CurrencySymbol}

	ledgerSvc := ledgersvc.NewService(ledgerclient.NewClient(cfg.Ledger), ledgersvc.Options{
		PollInterval:   cfg.Ledger.ConfirmPollInterval,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
		Location:       loc,
	}, baseLogger.Named("svc.ledger"))
	identityClient := identity.NewClient(cfg.Signer)

	var mongoRepo *mongodb.MongoDBRepository
	if cfg.MongoEnabled() {
		mongoRepo, err = mongodb.NewMongoDBRepository(startupCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
	}

	var redisRepo *redisrepo.Repository
	if cfg.RedisEnabled() {
		redisRepo, err = redisrepo.Connect(startupCtx, cfg.Redis)
		if err != nil {
			baseLogger.Fatal("failed to init redis repository", zap.Error(err))
		}
		defer func() {
			if err := redisRepo.Close(); err != nil {
				baseLogger.Error("failed to close redis connection", zap.Error(err))
			}
		}()
	}

	var profileCache dashboard.ProfileCache
	switch cfg.Cache.Backend {
	case config.CacheBackendMongo:
		profileCache = mongoRepo
	case config.CacheBackendRedis:
		profileCache = redisRepo
	default:
		profileCache = memory.NewProfileCache()
	}
	baseLogger.Info("profile cache selected", zap.String("backend", cfg.Cache.Backend))

	dash := dashboard.New(ledgerSvc, identityClient, profileCache, dashboard.Options{
		PageSize:          cfg.Dashboard.PageSize,
		LowStockThreshold: cfg.Dashboard.LowStockThreshold,
		JoinConcurrency:   cfg.Dashboard.JoinConcurrency,
		Location:          loc,
		PhoneRegion:       cfg.Dashboard.PhoneRegion,
		Currency:          currency,
	}, baseLogger.Named("svc.dashboard"))

	var notifier notify.Notifier = notify.Discard{Logger: baseLogger.Named("svc.notify")}
	if cfg.WhatsApp.Enabled() {
		notifier = notify.NewWhatsAppNotifier(whatsappclient.NewClient(cfg.WhatsApp), baseLogger.Named("svc.notify"))
		baseLogger.Info("whatsapp delivery enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, digest delivery disabled")
	}

	var archive scheduler.Archive
	if cfg.Reporting.Archive {
		archive = mongoRepo
	}
	var locker scheduler.Locker
	if redisRepo != nil {
		locker = redisRepo
	}

	reportingSvc := reportingsvc.NewService(ledgerSvc, cfg.Dashboard.LowStockThreshold, currency, loc, baseLogger.Named("svc.reporting"))
	sched := scheduler.NewScheduler(reportingSvc, archive, notifier, locker, scheduler.Options{
		Schedule:  cfg.Reporting.CronSchedule,
		Location:  loc,
		Recipient: cfg.Reporting.Recipient,
		Producer: func() string {
			if cfg.Reporting.Producer != "" {
				return cfg.Reporting.Producer
			}
			return dash.State().Address
		},
	}, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	var sheetStore export.SheetStore
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startupCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetStore = sheetsRepo
	}
	exporter := export.NewExporter(sheetStore, cfg.Sheets.LedgerRange, currency, baseLogger.Named("svc.export"))

	dashboardHandler := handlers.NewDashboardHandler(dash, exporter, sched, notifier, baseLogger.Named("handlers.dashboard"))
	engine := router.New(dashboardHandler, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		// Writes block until the ledger confirms them.
		WriteTimeout: cfg.Ledger.ConfirmTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
