// Package main runs the posture analysis HTTP server with WebSocket streaming and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uprightlabs/backend/config"
	"github.com/uprightlabs/backend/internal/analysis"
	"github.com/uprightlabs/backend/internal/auth"
	"github.com/uprightlabs/backend/internal/detector"
	"github.com/uprightlabs/backend/internal/history"
	"github.com/uprightlabs/backend/internal/middleware"
	"github.com/uprightlabs/backend/internal/posture"
	"github.com/uprightlabs/backend/internal/session"
	"github.com/uprightlabs/backend/internal/stream"
	"github.com/uprightlabs/backend/internal/worker"
	"github.com/uprightlabs/backend/pkg/database"
	"github.com/uprightlabs/backend/pkg/queue"
	"github.com/uprightlabs/backend/pkg/redis"
	"github.com/uprightlabs/backend/pkg/response"
	"github.com/uprightlabs/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Session store: CSV by default, PostgreSQL when STORE_DRIVER=postgres.
	var store history.Store
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		store = history.NewRepository(pool)
	default:
		csvStore, err := history.NewCSVStore(cfg.Store.CSVPath, logger)
		if err != nil {
			logger.Fatal("csv store", zap.Error(err))
		}
		store = csvStore
	}

	// Redis and S3 back the report export pipeline. Both are optional; the
	// engine stays fully functional without them.
	var jobQueue *queue.Queue
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, report exports disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			jobQueue = queue.NewQueue(rdb.Client, logger)
		}
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}
	if jobQueue == nil {
		logger.Info("report exports disabled")
	}

	// External keypoint detector. Without it the server still serves
	// sessions and history; frame analysis responds 503.
	var det detector.Detector
	if cfg.Detector.URL != "" {
		det = detector.NewClient(cfg.Detector.URL, time.Duration(cfg.Detector.TimeoutSec)*time.Second, logger)
	} else {
		logger.Warn("detector not configured, frame analysis disabled")
	}
	analyzer := posture.NewAnalyzer(det)

	var tokenService *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokenService = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.ExpireHours)
	} else {
		logger.Warn("admin token auth disabled, destructive endpoints are open")
	}

	registry := session.NewRegistry()
	hub := stream.NewHub(logger)
	recorder := history.NewRecorder(store, jobQueue, logger)

	analysisHandler := analysis.NewHandler(registry, hub, analyzer, det, recorder, logger)
	historyHandler := history.NewHandler(store, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "healthy"}) })

	// Single-image analysis (no session)
	router.POST("/analyze-pose", analysisHandler.AnalyzePose)

	postureGroup := router.Group("/posture")
	{
		postureGroup.POST("/start-session", analysisHandler.StartSession)
		postureGroup.POST("/analyze-frame", analysisHandler.AnalyzeFrame)
		postureGroup.POST("/end-session", analysisHandler.EndSession)
		postureGroup.GET("/session-status/:session_id", analysisHandler.SessionStatus)
		postureGroup.GET("/active-sessions", analysisHandler.ActiveSessions)
		postureGroup.POST("/quick-analyze", analysisHandler.QuickAnalyze)

		postureGroup.GET("/history", historyHandler.List)
		postureGroup.GET("/statistics", historyHandler.Statistics)
		postureGroup.GET("/session/:session_id/report-url", historyHandler.ReportURL)

		// Destructive endpoints sit behind the admin guard when a JWT
		// secret is configured.
		postureGroup.DELETE("/session/:session_id", middleware.AdminGuard(tokenService), historyHandler.DeleteSession)
		postureGroup.DELETE("/history", middleware.AdminGuard(tokenService), historyHandler.Clear)

		// WebSocket (session_id in query)
		postureGroup.GET("/ws", stream.ServeWS(registry, hub, analyzer, recorder, logger))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (report export to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && jobQueue != nil {
		processor := worker.NewReportProcessor(s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("report export worker started")
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

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
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
