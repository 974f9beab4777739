package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-analytics/config"
	"retail-analytics/internal/analysis"
	"retail-analytics/internal/api"
	"retail-analytics/internal/broker"
	"retail-analytics/internal/redisclient"
	"retail-analytics/internal/service"
	"retail-analytics/internal/store"
	"retail-analytics/internal/util"
	"retail-analytics/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting retail analytics service")

	tp, err := util.InitTracer("retail-analytics", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CreateTables(ctx); err != nil {
		logger.Fatal("Failed to create tables", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)

	reportService := service.NewReportService(db, cfg.Pipeline.ReportDir)
	pipelineService := service.NewPipelineService(db, redisClient, eventPublisher, reportService, service.PipelineOptions{
		OutputDir:       cfg.Pipeline.OutputDir,
		InsertChunkSize: cfg.Pipeline.InsertChunkSize,
		LockTTL:         cfg.Pipeline.LockTTL,
		Products: analysis.ProductOptions{
			NonProductCodes: cfg.Pipeline.NonProductCodes,
			TopN:            cfg.Pipeline.TopN,
		},
	})
	dashboardService := service.NewDashboardService(db, redisClient, cfg.Dashboard.CacheTTL, cfg.Dashboard.CompletenessThreshold)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	runConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.ConsumerGroup)
	cacheWorker := worker.NewCacheWorker(runConsumer, redisClient)
	go func() {
		if err := cacheWorker.Start(workerCtx); err != nil {
			logger.Error("Cache worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(dashboardService, pipelineService, cfg.Pipeline.ArchivePath, map[string]api.ReadinessCheck{
		"database": db.Ping,
		"redis":    redisClient.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := cacheWorker.Stop(); err != nil {
		logger.Warn("Error stopping cache worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
