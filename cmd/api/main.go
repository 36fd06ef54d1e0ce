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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/parsepoint/parsepoint-api/api/swagger"
	"github.com/parsepoint/parsepoint-api/internal/analytics"
	"github.com/parsepoint/parsepoint-api/internal/classify"
	"github.com/parsepoint/parsepoint-api/internal/extract"
	"github.com/parsepoint/parsepoint-api/internal/handler"
	"github.com/parsepoint/parsepoint-api/internal/middleware"
	"github.com/parsepoint/parsepoint-api/internal/pdfinfo"
	"github.com/parsepoint/parsepoint-api/internal/ratelimit"
	"github.com/parsepoint/parsepoint-api/internal/repository"
	"github.com/parsepoint/parsepoint-api/internal/service"
	"github.com/parsepoint/parsepoint-api/pkg/cache"
	"github.com/parsepoint/parsepoint-api/pkg/config"
	"github.com/parsepoint/parsepoint-api/pkg/database"
	"github.com/parsepoint/parsepoint-api/pkg/logger"
	corsmiddleware "github.com/parsepoint/parsepoint-api/pkg/middleware/cors"
	reqidmiddleware "github.com/parsepoint/parsepoint-api/pkg/middleware/requestid"
	"github.com/parsepoint/parsepoint-api/pkg/storage"
)

// @title ParsePoint API
// @version 1.0.0
// @description Batch document extraction pipeline
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	objectStore, err := newObjectStorage(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("storage init failed", "error", err)
	}

	// repositories
	batchRepo := repository.NewBatchRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// analytics
	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics.Enabled {
		queueSink := analytics.NewQueueSink(eventRepo, cfg.Analytics.Workers, logr)
		queueSink.Start(ctx)
		defer queueSink.Stop()
		sink = queueSink
	}

	// services
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret}, logr)
	tierSvc := service.NewTierService(subscriptionRepo, logr)
	quotaSvc := service.NewQuotaService(quotaRepo, logr)
	admissionSvc := service.NewAdmissionService(service.AdmissionConfig{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	}, pdfinfo.PageCount, logr)
	limiter := ratelimit.NewRedisLimiter(redisClient)
	ingestSvc := service.NewIngestService(tierSvc, admissionSvc, limiter, quotaSvc, batchRepo, objectStore, sink, logr)

	signer := storage.NewSignedURLSigner(cfg.Downloads.Secret, cfg.Downloads.TTL)
	batchSvc := service.NewBatchService(batchRepo, documentRepo, signer, objectStore, cfg.APIPrefix, logr)

	engine := extract.NewHTTPEngine(cfg.Extraction, logr)
	processorSvc := service.NewProcessorService(
		batchRepo, documentRepo, tierSvc, quotaSvc, objectStore,
		classify.NewKeywordClassifier(), engine, sink, metricsSvc, logr,
		service.ProcessorConfig{
			MaxBatchesPerRun:   cfg.Processor.MaxBatchesPerRun,
			MaxDocsPerBatchRun: cfg.Processor.MaxDocsPerBatchRun,
			LeaseTTL:           cfg.Processor.LeaseTTL,
		},
	)

	// handlers
	batchHandler := handler.NewBatchHandler(ingestSvc, batchSvc)
	processorHandler := handler.NewProcessorHandler(processorSvc, cfg.Processor.TriggerToken)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		authed := api.Group("", middleware.JWT(authSvc))
		{
			authed.POST("/batches", batchHandler.Create)
			authed.GET("/batches", batchHandler.List)
			authed.GET("/batches/:id", batchHandler.Get)
			authed.GET("/batches/:id/documents/:docId/download-url", batchHandler.DownloadURL)
		}
		api.GET("/downloads/:token", batchHandler.Download)
		api.POST("/internal/processor/run", processorHandler.Run)
	}

	if cfg.Processor.PollEnabled {
		go runProcessorLoop(ctx, processorSvc, cfg.Processor.PollInterval, logr)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

func newObjectStorage(ctx context.Context, cfg *config.Config, logr *zap.Logger) (storage.ObjectStorage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return storage.NewS3Storage(ctx, cfg.Storage)
	default:
		logr.Sugar().Infow("using local object storage", "dir", cfg.Storage.BaseDir)
		return storage.NewLocalStorage(cfg.Storage.BaseDir)
	}
}

// runProcessorLoop drives passes on a fixed interval for single-node
// deployments without an external scheduler.
func runProcessorLoop(ctx context.Context, processor *service.ProcessorService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := processor.RunPass(ctx); err != nil {
				logr.Sugar().Errorw("processor pass failed", "error", err)
			}
		}
	}
}
