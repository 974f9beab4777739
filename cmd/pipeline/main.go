package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-analytics/config"
	"retail-analytics/internal/analysis"
	"retail-analytics/internal/broker"
	"retail-analytics/internal/redisclient"
	"retail-analytics/internal/service"
	"retail-analytics/internal/store"
	"retail-analytics/internal/util"

	"go.uber.org/zap"
)

func main() {
	archive := flag.String("archive", "", "path to the zipped workbook (overrides PIPELINE_ARCHIVE_PATH)")
	noPublish := flag.Bool("no-publish", false, "skip the run-completed event")
	noReport := flag.Bool("no-report", false, "skip the batch report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *archive != "" {
		cfg.Pipeline.ArchivePath = *archive
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	tp, err := util.InitTracer("retail-analytics-pipeline", cfg.Observ.JaegerEndpoint)
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

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	var publisher service.RunPublisher
	if !*noPublish {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
	}

	var reporter service.Reporter
	if !*noReport {
		reporter = service.NewReportService(db, cfg.Pipeline.ReportDir)
	}

	pipelineService := service.NewPipelineService(db, redisClient, publisher, reporter, service.PipelineOptions{
		OutputDir:       cfg.Pipeline.OutputDir,
		InsertChunkSize: cfg.Pipeline.InsertChunkSize,
		LockTTL:         cfg.Pipeline.LockTTL,
		Products: analysis.ProductOptions{
			NonProductCodes: cfg.Pipeline.NonProductCodes,
			TopN:            cfg.Pipeline.TopN,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipelineService.Run(ctx, cfg.Pipeline.ArchivePath)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			logger.Warn("Another pipeline run holds the lock, exiting")
		} else {
			logger.Error("Pipeline run failed", zap.Error(err))
		}
		util.SyncLogger()
		os.Exit(1)
	}

	logger.Info("Pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.String("run_timestamp", summary.RunTimestamp),
		zap.Int("rows_extracted", summary.RowsExtracted),
		zap.Int("duplicates_removed", summary.DuplicatesRemoved),
		zap.Int("negative_price_rows", summary.NegativePriceRows),
		zap.Int("rows_loaded", summary.RowsLoaded),
		zap.Int("customers", summary.Customers),
		zap.Int("profitable_products", summary.ProfitableProducts),
		zap.Int("loss_products", summary.LossProducts),
		zap.String("net_revenue", summary.NetRevenue.StringFixed(2)),
		zap.Int("report_files", summary.ReportFiles),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
}
