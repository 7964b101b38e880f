package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/adp-bulkops/api/swagger"
	"github.com/noah-isme/adp-bulkops/internal/handler"
	"github.com/noah-isme/adp-bulkops/internal/middleware"
	"github.com/noah-isme/adp-bulkops/internal/models"
	"github.com/noah-isme/adp-bulkops/internal/repository"
	"github.com/noah-isme/adp-bulkops/internal/service"
	"github.com/noah-isme/adp-bulkops/pkg/cache"
	"github.com/noah-isme/adp-bulkops/pkg/config"
	"github.com/noah-isme/adp-bulkops/pkg/database"
	"github.com/noah-isme/adp-bulkops/pkg/jobs"
	"github.com/noah-isme/adp-bulkops/pkg/logger"
	corsmiddleware "github.com/noah-isme/adp-bulkops/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/adp-bulkops/pkg/middleware/requestid"
)

// @title ADP Bulk Operations API
// @version 0.1.0
// @description Bulk role-assignment engine for the school admin platform
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs caching and notification fan-out; the engine
		// stays functional without it.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	runRepo := repository.NewRunRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)
	userRepo := repository.NewUserDirectoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	policySvc := service.NewPolicyService(policyRepo, logr)
	parser := service.NewBulkParser(cfg.Bulk.MaxRows)
	validator := service.NewBulkValidator(userRepo, policySvc, logr)
	executor := service.NewBulkRunService(runRepo, outcomeRepo, userRepo, auditRepo, metricsSvc, logr, service.BulkRunConfig{
		BatchSize:  cfg.Bulk.BatchSize,
		MaxRetries: cfg.Bulk.MaxRetries,
		RetryDelay: cfg.Bulk.RetryDelay,
	})
	statusSvc := service.NewBulkStatusService(runRepo, outcomeRepo, cacheRepo, logr, service.BulkStatusConfig{
		DefaultBatchSize: cfg.Bulk.BatchSize,
		PerItemLatency:   cfg.Bulk.PerItemLatency,
		CacheTTL:         cfg.Bulk.StatusCacheTTL,
	})
	rollbackSvc := service.NewBulkRollbackService(runRepo, outcomeRepo, userRepo, auditRepo, metricsSvc, logr)

	notifySvc := service.NewNotificationService(repository.NewRedisNotifier(redisClient), logr, service.NotifierConfig{
		Enabled:     cfg.Notifications.Enabled && redisClient != nil,
		Concurrency: cfg.Notifications.Concurrency,
		Template:    cfg.Notifications.Template,
	})

	bulkSvc := service.NewBulkService(parser, validator, executor, notifySvc, statusSvc, runRepo, outcomeRepo, logr, service.BulkServiceConfig{
		SyncThreshold: cfg.Bulk.SyncThreshold,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("bulk-runs", bulkSvc.HandleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Bulk.WorkerBuffer,
		MaxRetries: 1,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	bulkSvc.BindQueue(queue)

	tokenSvc := service.NewTokenService(cfg.JWT.Secret)
	bulkHandler := handler.NewBulkHandler(bulkSvc, executor, statusSvc, rollbackSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Bulk.Enabled {
		api := r.Group(cfg.APIPrefix)
		api.Use(middleware.JWT(tokenSvc))

		bulk := api.Group("/bulk/role-assignments")
		bulk.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
		bulk.POST("", bulkHandler.Submit)
		bulk.POST("/preview", bulkHandler.Preview)
		bulk.GET("", bulkHandler.List)
		bulk.GET("/:id", bulkHandler.Get)
		bulk.GET("/:id/status", bulkHandler.Status)
		bulk.GET("/:id/export", bulkHandler.Export)
		bulk.POST("/:id/rollback", bulkHandler.Rollback)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
