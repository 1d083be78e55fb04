package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/events"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Generates weekly university timetables and serves their exports
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.NewPostgres(connectCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Timetable.ExportCache {
		redisClient, err = cache.NewRedis(connectCtx, cfg.Redis)
		if err != nil {
			logr.Warn("export cache disabled", zap.Error(err))
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetable.ExportCacheTTL, logr, redisClient != nil)

	exportStore, err := storage.NewLocalStorage(cfg.Timetable.ExportDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Timetable.SignedURLSecret, cfg.Timetable.SignedURLTTL)

	notifier, queue := buildNotifications(cfg, metrics, logr)
	// Not tied to ctx: Stop drains buffered notifications after the server shuts down.
	queue.Start(context.Background())
	defer queue.Stop()

	timetableSvc := service.NewTimetableService(service.TimetableDeps{
		Sections: repository.NewSectionRepository(db),
		Rooms:    repository.NewRoomRepository(db),
		Runs:     repository.NewTimetableRunRepository(db),
		Tx:       db,
		Cache:    cacheSvc,
		Storage:  exportStore,
		Signer:   signer,
		Notifier: notifier,
		Metrics:  metrics,
	}, service.TimetableConfig{
		APIPrefix:      cfg.APIPrefix,
		ExportCacheTTL: cfg.Timetable.ExportCacheTTL,
	}, validate, logr.Named("timetable"))

	authSvc := service.NewAuthService(repository.NewUserRepository(db), validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "campus-timetable-api",
	})

	router := newRouter(routerDeps{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Auth:           authSvc,
		Timetables:     timetableSvc,
		Checks:         readinessChecks(db, redisClient),
	})

	go sweepExports(ctx, exportStore, cfg.Timetable.SignedURLTTL, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	err = srv.Shutdown(shutdownCtx)
	queue.Stop()
	return err
}

func buildNotifications(cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.NotificationService, *jobs.Queue) {
	notifier := service.NewNotificationService(nil, metrics, logr.Named("notifications"))
	if cfg.Notifications.Enabled {
		publisher := events.NewAMQPPublisher(cfg.Notifications.RabbitMQURL, cfg.Notifications.Queue, logr.Named("amqp"))
		notifier = service.NewNotificationService(publisher, metrics, logr.Named("notifications"))
		logr.Info("timetable notifications enabled", zap.String("queue", publisher.Queue()))
	}

	queue := jobs.NewQueue("notifications", notifier.Handle, jobs.QueueConfig{
		Workers:      cfg.Notifications.Workers,
		MaxRetries:   cfg.Notifications.Retries,
		RetryDelay:   2 * time.Second,
		DrainTimeout: 10 * time.Second,
		Logger:       logr,
		OnDrop: func(job jobs.Job, err error) {
			logr.Error("timetable notification dropped", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	notifier.AttachQueue(queue)
	return notifier, queue
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func sweepExports(ctx context.Context, store *storage.LocalStorage, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.CleanupOlderThan(ttl)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(deleted)))
			}
		}
	}
}
