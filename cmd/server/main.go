// Package main runs the voice-note HTTP server with WebSocket status events and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voxnote/backend/config"
	"github.com/voxnote/backend/internal/app"
	"github.com/voxnote/backend/internal/auth"
	"github.com/voxnote/backend/internal/formats"
	"github.com/voxnote/backend/internal/integrations"
	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/internal/pipeline"
	"github.com/voxnote/backend/internal/realtime"
	"github.com/voxnote/backend/internal/recordings"
	"github.com/voxnote/backend/internal/usage"
	"github.com/voxnote/backend/internal/worker"
	"github.com/voxnote/backend/pkg/database"
	"github.com/voxnote/backend/pkg/queue"
	"github.com/voxnote/backend/pkg/redis"
	"github.com/voxnote/backend/pkg/response"
	"github.com/voxnote/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Audio is parked in S3 only when a bucket is configured; otherwise the
	// pipeline runs in-process straight from the upload.
	var s3Client *storage.S3
	if cfg.AWS.AudioBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AudioBucket:          cfg.AWS.AudioBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled, running pipeline inline", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	stack, err := app.NewStack(cfg, pool, s3Client, hub, logger)
	if err != nil {
		logger.Fatal("pipeline", zap.Error(err))
	}
	orch := stack.Orchestrator

	jobQueue := queue.NewQueue(rdb.Client, logger)
	var (
		dispatcher pipeline.Dispatcher
		audioStore recordings.AudioStore
		inline     *pipeline.InlineDispatcher
	)
	if s3Client != nil {
		dispatcher = worker.NewQueueDispatcher(s3Client, jobQueue)
		audioStore = s3Client
		logger.Info("pipeline mode: queue", zap.String("bucket", s3Client.AudioBucket()))
	} else {
		inline = pipeline.NewInlineDispatcher(orch, logger)
		dispatcher = inline
		logger.Info("pipeline mode: inline")
	}

	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, cfg.Pipeline.DefaultPlanMinutes, logger)
	recordingHandler := recordings.NewHandler(stack.Recordings, orch, dispatcher, audioStore, cfg.Server.MaxUploadMB, logger)
	usageHandler := usage.NewHandler(stack.Usage, stack.UsageRepo, logger)
	formatHandler := formats.NewHandler(stack.Formats, logger)
	integrationHandler := integrations.NewHandler(stack.Integrations, logger)

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/recordings", recordingHandler.Upload)
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.GET("/recordings/:id/audio-url", recordingHandler.AudioURL)
		api.DELETE("/recordings/:id", recordingHandler.Delete)

		api.GET("/usage", usageHandler.Get)

		api.GET("/formats", formatHandler.List)
		api.POST("/formats", formatHandler.Create)
		api.PATCH("/formats/:id", formatHandler.Update)
		api.DELETE("/formats/:id", formatHandler.Delete)
		api.POST("/formats/:id/default", formatHandler.SetDefault)

		api.GET("/integrations", integrationHandler.Get)
		api.PUT("/integrations", integrationHandler.Put)

		admin := api.Group("/admin", middleware.RequireRole("admin"))
		admin.GET("/users", authHandler.List)
		admin.POST("/users/:id/bonus-minutes", usageHandler.GrantBonus)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var background sync.WaitGroup
	if cfg.Server.RunWorker {
		sweeper := worker.NewSweeper(stack.Recordings, orch,
			time.Duration(cfg.Pipeline.StuckAfterMinutes)*time.Minute,
			time.Duration(cfg.Pipeline.SweepIntervalSec)*time.Second, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			sweeper.Run(workerCtx)
		}()
		if s3Client != nil {
			processor := worker.NewRecordingProcessor(stack.Recordings, s3Client, orch, jobQueue, logger)
			background.Add(1)
			go func() {
				defer background.Done()
				processor.Run(workerCtx)
			}()
		}
		logger.Info("background worker started")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	background.Wait()
	if inline != nil {
		// In-flight pipelines finish before exit.
		inline.Wait()
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
