package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/job-tracker/internal/api/http"
	"github.com/spec-kit/job-tracker/internal/api/http/handlers"
	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/observability"
	"github.com/spec-kit/job-tracker/internal/platform"
	"github.com/spec-kit/job-tracker/internal/service"
	"github.com/spec-kit/job-tracker/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := platform.Open(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		ProfileRepo: backends.Profiles,
		RoleRepo:    backends.Roles,
		Revocations: backends.Revocations,
		Logger:      logger,
	})
	jobService := service.NewJobService(service.JobDependencies{
		JobRepo:     backends.Jobs,
		ProfileRepo: backends.Profiles,
		RoleRepo:    backends.Roles,
		Feed:        backends.Feed,
		Policy:      domain.StatusPolicy{LockCompleted: cfg.Jobs.LockCompleted},
		Logger:      logger,
	})
	importService := service.NewImportService(service.ImportDependencies{
		JobRepo: backends.Jobs,
		Feed:    backends.Feed,
		Metrics: metrics,
		Logger:  logger,
	})
	roleService := service.NewRoleService(service.RoleDependencies{
		RoleRepo:    backends.Roles,
		ProfileRepo: backends.Profiles,
		Logger:      logger,
	})
	profileService := service.NewProfileService(service.ProfileDependencies{
		ProfileRepo: backends.Profiles,
		BcryptCost:  cfg.Auth.BcryptCost,
		Logger:      logger,
	})
	reportService := service.NewReportService(backends.Jobs)

	notificationService := service.NewNotificationService(backends.Feed, logger, metrics)
	workerDone, err := worker.StartNotificationWorker(ctx, notificationService, logger)
	if err != nil {
		logger.Fatal("failed to start notification worker", zap.Error(err))
	}

	pingers := map[string]handlers.Pinger{}
	for name, p := range backends.Pingers() {
		pingers[name] = p
	}

	app := httptransport.NewApp(*cfg, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pingers),
		Auth:    handlers.NewAuthHandler(authService),
		Jobs:    handlers.NewJobsHandler(jobService, importService, int64(cfg.Import.MaxBytes)),
		Users:   handlers.NewUsersHandler(roleService, profileService),
		Reports: handlers.NewReportsHandler(reportService),
		Streams: handlers.NewStreamHandler(handlers.StreamDependencies{
			Base:        ctx,
			Feed:        backends.Feed,
			Jobs:        jobService,
			Reports:     reportService,
			Roles:       roleService,
			Revocations: authService,
			Metrics:     metrics,
			Heartbeat:   cfg.Stream.Heartbeat(),
			Logger:      logger,
		}),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("store", cfg.Store.Driver),
			zap.String("feed", cfg.Feed.Driver))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// Open streams and the worker hang off ctx.
	cancel()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-workerDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
