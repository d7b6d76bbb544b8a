package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/civicgrid/civicgrid-api/api/swagger"
	"github.com/civicgrid/civicgrid-api/internal/handler"
	"github.com/civicgrid/civicgrid-api/internal/repository"
	"github.com/civicgrid/civicgrid-api/internal/service"
	"github.com/civicgrid/civicgrid-api/pkg/cache"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	"github.com/civicgrid/civicgrid-api/pkg/database"
	"github.com/civicgrid/civicgrid-api/pkg/jobs"
	"github.com/civicgrid/civicgrid-api/pkg/logger"
	"github.com/civicgrid/civicgrid-api/pkg/storage"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// @title CivicGrid API
// @version 1.0.0
// @description Municipal civic issue reporting and escalation service
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis backs analytics caching and rate limiting only; the API
		// degrades rather than refusing to start.
		logr.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	issueRepo := repository.NewIssueRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()

	notifier := service.NewNotificationService(notificationRepo, nil, jobs.Options{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	policy := service.NewEscalationPolicy(cfg.Escalation)
	directory := service.NewDirectoryService(userRepo, logr)
	engine := service.NewEscalationService(issueRepo, directory, policy, notifier, cfg.Escalation, metrics, logr)
	engine.StartScheduler(ctx)

	classifier := service.NewClassifierService(cfg.Classifier, logr)
	issueSvc := service.NewIssueService(issueRepo, userRepo, engine, classifier, notifier, cfg.Resolution, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, cfg.JWT)
	userSvc := service.NewUserService(userRepo, validate, logr)
	analyticsSvc := service.NewAnalyticsService(issueRepo, cacheRepo, metrics, cfg.Analytics, logr)

	photoStore, err := storage.NewLocalStorage(cfg.Photos.Dir)
	if err != nil {
		logr.Fatal("failed to init photo storage", zap.Error(err))
	}
	photoSigner := storage.NewSignedURLSigner(cfg.Photos.Secret, cfg.Photos.URLTTL)
	photoSvc := service.NewPhotoService(photoStore, photoSigner, cfg.Photos, logr)

	router := handler.NewRouter(handler.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Redis:         redisClient,
		Auth:          authSvc,
		Users:         userSvc,
		Issues:        issueSvc,
		Engine:        engine,
		Notifications: notifier,
		Analytics:     analyticsSvc,
		Photos:        photoSvc,
		Metrics:       metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
