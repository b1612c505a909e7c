package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/config"
	http_controllers "github.com/mrlokans/tagnotes/internal/http"
	"github.com/mrlokans/tagnotes/internal/scheduler"
	"github.com/mrlokans/tagnotes/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs router until SIGINT or SIGTERM, then shuts down within the
// configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, logger *zap.Logger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()), zap.Duration("timeout", timeout))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the server stops taking requests
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

// Run wires the application and serves it until interrupted.
func Run(cfg *config.Config, logger *zap.Logger, version string) error {
	logger.Info("starting tagnotes", zap.String("version", version))

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("error closing application", zap.Error(err))
		}
	}()

	routerCfg := http_controllers.RouterConfig{
		Importer:      app.Coordinator,
		Exporter:      app.Exporter,
		Settings:      app.Settings,
		Users:         app.Users,
		Database:      app.DB,
		DefaultUserID: app.Owner.ID,
		MaxBodyBytes:  cfg.Import.MaxBodyBytes,
		Audit:         app.Audit,
		Sweep: http_controllers.SweepSettings{
			StaleAfter:         cfg.Import.StaleAfter,
			PayloadRetention:   cfg.Import.PayloadRetention,
			AuditRetentionDays: cfg.Audit.RetentionDays,
		},
		Version: version,
		Logger:  logger,
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var queue Enqueuer
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error("error closing task client", zap.Error(err))
			}
		}()

		taskClient.Register(
			tasks.NewResumeImportQueue(app.Coordinator, logger),
			tasks.NewSweepImportSessionsQueue(app.Sessions, app.Audit, logger),
			tasks.NewCleanupAuditEventsQueue(app.Audit, logger),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		routerCfg.Tasks = taskClient
		queue = taskClient
	} else {
		logger.Info("task queue disabled; recovery runs synchronously only")
	}

	sched := scheduler.NewScheduler(logger, MaintenanceJobs(app, queue)...)
	if err := sched.Start(context.Background()); err != nil {
		if taskCtxCancel != nil {
			taskCtxCancel()
		}
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		sched.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	return Serve(router, cfg, logger, onShutdown)
}
