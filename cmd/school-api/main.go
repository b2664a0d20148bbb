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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-site-api/api/swagger"
	"github.com/noah-isme/school-site-api/internal/handler"
	"github.com/noah-isme/school-site-api/internal/middleware"
	"github.com/noah-isme/school-site-api/internal/repository"
	"github.com/noah-isme/school-site-api/internal/routes"
	"github.com/noah-isme/school-site-api/internal/service"
	"github.com/noah-isme/school-site-api/pkg/cache"
	"github.com/noah-isme/school-site-api/pkg/config"
	"github.com/noah-isme/school-site-api/pkg/database"
	"github.com/noah-isme/school-site-api/pkg/jobs"
	"github.com/noah-isme/school-site-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-site-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-site-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-site-api/pkg/storage"
)

// @title School Site API
// @version 1.0.0
// @description Exam results, CSV bulk upload, and contact/admission inquiries for the school website.
// @BasePath /api
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.EnsureResultSchema(ctx, db); err != nil {
			logr.Fatal("failed to migrate results schema", zap.Error(err))
		}
	}

	mongoPool := database.NewMongoPool(cfg.Mongo)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoPool.Close(closeCtx)
	}()
	if err := database.EnsureInquiryIndexes(ctx, mongoPool); err != nil {
		// Mongo connects lazily, so inquiries recover once the server is reachable.
		logr.Warn("inquiry indexes not ensured", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Results)
	if err != nil {
		logr.Warn("redis unavailable, result caching disabled", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	var redisRepo *repository.CacheRepository
	if redisClient != nil {
		redisRepo = repository.NewCacheRepository(redisClient, "school-site")
		defer redisRepo.Close()
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Results.CacheTTL, logr, redisClient != nil)

	invalidations := jobs.NewQueue(service.JobTypeInvalidateLookup, service.NewLookupInvalidator(cacheSvc), jobs.QueueConfig{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: cfg.Results.InvalidateRetry,
		RetryDelay: 200 * time.Millisecond,
		Logger:     logr,
		OnFinish: func(job jobs.Job, err error) {
			metricsSvc.RecordJob(job.Type, err)
		},
	})
	invalidations.Start(ctx)
	defer invalidations.Stop()

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}
	exportFiles, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	resultRepo := repository.NewResultRepository(db).WithObserver(metricsSvc)
	resultSvc := service.NewResultService(resultRepo, cacheSvc, invalidations, uploads, metricsSvc, service.ResultServiceConfig{
		ExamTypes:      cfg.Results.ExamTypes,
		MaxExamTypes:   cfg.Results.MaxExamTypes,
		MaxUploadBytes: cfg.Results.MaxUploadBytes,
		CacheTTL:       cfg.Results.CacheTTL,
	}, validate, logr)
	exportSvc := service.NewResultExportService(resultRepo, exportFiles, signer, metricsSvc, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ExamTypes: cfg.Results.ExamTypes,
		RetainFor: cfg.Exports.SignedURLTTL * 2,
	}, validate, logr)
	inquirySvc := service.NewInquiryService(
		repository.NewContactRepository(mongoPool),
		repository.NewAdmissionRepository(mongoPool),
		metricsSvc, validate, logr,
	)
	authSvc := service.NewAdminAuthService(service.AdminAuthConfig{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
		Secret:       cfg.Admin.JWTSecret,
		Expiry:       cfg.Admin.Expiration,
	}, validate, logr)

	go runExportCleanup(ctx, exportSvc, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": resultRepo.Ping,
		"mongo":    mongoPool.Ping,
	}
	if redisRepo != nil {
		checks["redis"] = redisRepo.Ping
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	routes.Setup(r, routes.Handlers{
		Results:   handler.NewResultHandler(resultSvc, cfg.Results.MaxUploadBytes),
		Exports:   handler.NewExportHandler(exportSvc),
		Inquiries: handler.NewInquiryHandler(inquirySvc),
		Auth:      handler.NewAuthHandler(authSvc),
		Metrics:   handler.NewMetricsHandler(metricsSvc, checks),
	}, routes.Options{
		APIPrefix: cfg.APIPrefix,
		Validator: authSvc,
		Logger:    logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func runExportCleanup(ctx context.Context, exports *service.ResultExportService, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exports.Cleanup(); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}
