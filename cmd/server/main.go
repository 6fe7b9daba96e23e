// Package main runs the Congregate HTTP API with WebSocket refetch signals and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/congregate/backend/config"
	"github.com/congregate/backend/internal/auth"
	"github.com/congregate/backend/internal/events"
	"github.com/congregate/backend/internal/groups"
	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/notifications"
	"github.com/congregate/backend/internal/permissions"
	"github.com/congregate/backend/internal/pricing"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/internal/resources"
	"github.com/congregate/backend/internal/services"
	"github.com/congregate/backend/internal/tenants"
	"github.com/congregate/backend/pkg/database"
	"github.com/congregate/backend/pkg/queue"
	"github.com/congregate/backend/pkg/redis"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/storage"
	"github.com/congregate/backend/pkg/validation"
)

// countingPublisher forwards change signals to the hub and counts them per entity.
type countingPublisher struct {
	hub     *realtime.Hub
	metrics *middleware.Metrics
}

func (p countingPublisher) PublishChange(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) {
	p.metrics.Mutation(entity, "changed")
	p.hub.PublishChange(ctx, tenantID, entity, id)
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := validation.RegisterGin(); err != nil {
		logger.Fatal("register validators", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	pool, err := database.NewPostgresPool(ctx, database.PoolConfig{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var objects resources.ObjectStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ResourcesBucket:      cfg.AWS.ResourcesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	} else {
		logger.Warn("AWS_REGION not set, resource uploads disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	pub := countingPublisher{hub: hub, metrics: metrics}
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Repositories
	authRepo := auth.NewRepository(pool)
	tenantRepo := tenants.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)
	serviceRepo := services.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	resourceRepo := resources.NewRepository(pool)
	notificationRepo := notifications.NewRepository(pool)
	limiter := pricing.NewLimiter(pricing.NewRepository(pool))
	checker := permissions.NewChecker(permissions.NewRepository(pool))

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	tenantHandler := tenants.NewHandler(tenantRepo, limiter, pub, logger)
	groupHandler := groups.NewHandler(groupRepo, tenantRepo, limiter, pub, logger)
	serviceHandler := services.NewHandler(serviceRepo, tenantRepo, checker, pub, logger)
	eventHandler := events.NewHandler(events.Deps{
		Store:    eventRepo,
		Services: serviceRepo,
		Roles:    tenantRepo,
		Perms:    checker,
		Limiter:  limiter,
		Notifier: jobQueue,
		Pub:      pub,
		Logger:   logger,
	})
	resourceHandler := resources.NewHandler(resourceRepo, objects, tenantRepo, pub, logger)
	notificationHandler := notifications.NewHandler(notificationRepo, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	// Health
	router.GET("/health", health(pool, rdb))
	if cfg.Metrics.Path != "" {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	router.GET("/price-tiers", pricing.List)

	// Auth (public, rate limited per IP)
	authGroup := router.Group("/auth", middleware.RateLimit(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst))
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.GET("/auth/me", authHandler.Me)
	tenant := api.Group("/tenants/:tenantId", middleware.RequireTenantMember(tenantRepo))

	tenantHandler.RegisterRoutes(api, tenant)
	groupHandler.RegisterRoutes(api, tenant)
	serviceHandler.RegisterRoutes(api, tenant)
	eventHandler.RegisterRoutes(api, tenant)
	resourceHandler.RegisterRoutes(api, tenant)
	notificationHandler.RegisterRoutes(tenant)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.UserID, tenantRepo))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// health answers 200 when Postgres and Redis respond, 503 otherwise.
func health(pool *pgxpool.Pool, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbOK := pool.Ping(ctx) == nil
		redisOK := rdb.Healthy(ctx)
		status := gin.H{"status": "ok", "database": dbOK, "redis": redisOK}
		if !dbOK || !redisOK {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Data: status, Error: "dependency unavailable"})
			return
		}
		response.OK(c, status)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
