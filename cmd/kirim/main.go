package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/kirim-crm/kirim-crm/internal/app"
	"github.com/kirim-crm/kirim-crm/internal/auth"
	authhttp "github.com/kirim-crm/kirim-crm/internal/auth/http"
	"github.com/kirim-crm/kirim-crm/internal/crm/customers"
	"github.com/kirim-crm/kirim-crm/internal/crm/dashboard"
	crmjobs "github.com/kirim-crm/kirim-crm/internal/crm/jobs"
	"github.com/kirim-crm/kirim-crm/internal/guard"
	"github.com/kirim-crm/kirim-crm/internal/observability"
	"github.com/kirim-crm/kirim-crm/internal/platform/cache"
	"github.com/kirim-crm/kirim-crm/internal/platform/db"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "kirim_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authStore := auth.NewStore(authService, logger)
	authStore.Start()
	defer authStore.Stop()

	urlChecker, err := guard.NewURLChecker(cfg.AppBaseURL, logger)
	if err != nil {
		logger.Error("parse base url", slog.Any("error", err))
		os.Exit(1)
	}
	activity := guard.NewActivityTracker(redisClient, logger, cfg.ActivityMaxIdle)
	metrics := observability.NewMetrics()

	routeGuard := guard.New(authStore, activity, urlChecker, templates, csrfManager, logger)
	routeGuard.OnDecision = metrics.ObserveGuardDecision

	broadcaster := guard.NewBroadcaster(redisClient, logger)
	subscriber := guard.NewSubscriber(redisClient, sessionManager, authStore, activity, logger)

	taskClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("task client close", slog.Any("error", err))
		}
	}()

	authHandler := authhttp.NewHandler(authhttp.HandlerParams{
		Store:       authStore,
		Sessions:    sessionManager,
		CSRF:        csrfManager,
		Templates:   templates,
		URLs:        urlChecker,
		Activity:    activity,
		Broadcaster: broadcaster,
		Audit:       auditLogger,
		Tasks:       taskClient,
		Logger:      logger,
	})

	customerRepo := customers.NewRepository(pool)
	customerHandler := customers.NewHandler(customerRepo, templates, csrfManager, logger)

	jobRepo := crmjobs.NewRepository(pool)
	jobHandler := crmjobs.NewHandler(jobRepo, customerRepo, templates, csrfManager, logger)

	dashboardService := dashboard.NewService(customerRepo, jobRepo, redisClient, time.Minute, logger)
	dashboardHandler := dashboard.NewHandler(dashboardService, jobRepo, templates, csrfManager, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Guard:            routeGuard,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		CustomerHandler:  customerHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := subscriber.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
