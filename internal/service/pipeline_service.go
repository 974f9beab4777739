package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-analytics/internal/analysis"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
	"retail-analytics/internal/report"
	"retail-analytics/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when another run holds the pipeline lock
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RunLockName guards against concurrent reloads of the store
const RunLockName = "pipeline-run"

// Loader replaces the stored tables with a new load
type Loader interface {
	ReplaceAll(ctx context.Context, rows []models.Transaction, customers []models.CustomerSummary, chunkSize int) error
}

// RunLocker is a lock shared by every process that can start a run
type RunLocker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// RunPublisher announces finished runs
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error
}

// Reporter produces the batch report after a load
type Reporter interface {
	Generate(ctx context.Context, runTS string) (*ReportResult, error)
}

// PipelineOptions tunes a run
type PipelineOptions struct {
	OutputDir       string
	InsertChunkSize int
	LockTTL         time.Duration
	Products        analysis.ProductOptions
}

// PipelineService runs extract, clean, normalize, revenue, aggregation, load
// and report as one unit
type PipelineService struct {
	loader    Loader
	locker    RunLocker
	publisher RunPublisher
	reporter  Reporter
	opts      PipelineOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipelineService creates a new pipeline service. publisher and reporter
// may be nil to skip those steps.
func NewPipelineService(
	loader Loader,
	locker RunLocker,
	publisher RunPublisher,
	reporter Reporter,
	opts PipelineOptions,
) *PipelineService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &PipelineService{
		loader:    loader,
		locker:    locker,
		publisher: publisher,
		reporter:  reporter,
		opts:      opts,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Run processes the archive at archivePath and reloads the store. Any stage
// failure aborts the run before the load is committed.
func (s *PipelineService) Run(ctx context.Context, archivePath string) (*models.RunSummary, error) {
	ctx, span := util.StartSpan(ctx, "PipelineService.Run")
	defer span.End()

	runID := uuid.New().String()
	logger := util.RunLogger(runID)

	acquired, err := s.locker.AcquireLock(ctx, RunLockName, runID, s.opts.LockTTL)
	if err != nil {
		util.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return nil, util.FailSpan(span, err)
	}
	if !acquired {
		util.PipelineRunsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), RunLockName, runID); err != nil {
			logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	started := s.now()
	summary := &models.RunSummary{
		RunID:        runID,
		RunTimestamp: report.RunTimestamp(started),
		StartedAt:    started,
	}
	logger.Info("Pipeline run started", zap.String("archive", archivePath))

	if err := s.execute(ctx, logger, archivePath, summary); err != nil {
		util.PipelineRunsTotal.WithLabelValues("failed").Inc()
		logger.Error("Pipeline run failed", zap.Error(err))
		return nil, util.FailSpan(span, err)
	}

	summary.FinishedAt = s.now()
	util.PipelineRunsTotal.WithLabelValues("succeeded").Inc()
	logger.Info("Pipeline run finished",
		zap.Int("rows_loaded", summary.RowsLoaded),
		zap.Int("customers", summary.Customers),
		zap.String("net_revenue", summary.NetRevenue.StringFixed(2)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

func (s *PipelineService) execute(ctx context.Context, logger *zap.Logger, archivePath string, summary *models.RunSummary) error {
	var raw []models.RawRow
	if err := s.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		raw, err = pipeline.Extract(ctx, archivePath)
		return err
	}); err != nil {
		return err
	}
	summary.RowsExtracted = len(raw)
	util.PipelineRowsTotal.WithLabelValues("extract").Add(float64(len(raw)))

	var rows []models.Transaction
	if err := s.stage(ctx, "clean", func(context.Context) error {
		var stats pipeline.CleanStats
		var err error
		rows, stats, err = pipeline.Clean(raw)
		if err != nil {
			return err
		}
		summary.DuplicatesRemoved = stats.DuplicatesRemoved
		return nil
	}); err != nil {
		return err
	}
	util.PipelineRowsTotal.WithLabelValues("clean").Add(float64(len(rows)))
	util.DuplicateRowsRemoved.Add(float64(summary.DuplicatesRemoved))
	logger.Info("Cleaned rows",
		zap.Int("rows", len(rows)),
		zap.Int("duplicates_removed", summary.DuplicatesRemoved))

	if err := s.stage(ctx, "normalize", func(context.Context) error {
		var stats pipeline.NormalizeStats
		rows, stats = pipeline.Normalize(rows)
		summary.NegativePriceRows = stats.NegativePriceRows
		return nil
	}); err != nil {
		return err
	}
	util.PipelineRowsTotal.WithLabelValues("normalize").Add(float64(len(rows)))
	util.NegativePriceRowsDropped.Add(float64(summary.NegativePriceRows))

	if err := s.stage(ctx, "revenue", func(context.Context) error {
		rows = pipeline.CalculateRevenue(rows)
		summary.TotalRevenue, summary.NetRevenue = pipeline.Totals(rows)
		return nil
	}); err != nil {
		return err
	}

	var products analysis.ProductAnalysis
	var customers []models.CustomerSummary
	if err := s.stage(ctx, "aggregate", func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			products = analysis.AnalyzeProducts(rows, s.opts.Products)
			return gctx.Err()
		})
		g.Go(func() error {
			customers = analysis.AnalyzeCustomers(rows)
			return gctx.Err()
		})
		return g.Wait()
	}); err != nil {
		return err
	}
	summary.Customers = len(customers)
	summary.ProfitableProducts = products.ProfitableCount
	summary.LossProducts = products.LossCount
	for _, p := range products.TopProfitable {
		logger.Debug("Top profitable product", zap.String("stock_code", p.StockCode), zap.String("net_revenue", p.NetRevenue.String()))
	}
	for _, p := range products.TopLosses {
		logger.Debug("Top loss product", zap.String("stock_code", p.StockCode), zap.String("net_revenue", p.NetRevenue.String()))
	}

	if s.opts.OutputDir != "" {
		if err := s.stage(ctx, "output", func(context.Context) error {
			_, err := pipeline.SaveOutputs(s.opts.OutputDir, rows, customers)
			return err
		}); err != nil {
			return err
		}
	}

	if err := s.stage(ctx, "load", func(ctx context.Context) error {
		return s.loader.ReplaceAll(ctx, rows, customers, s.opts.InsertChunkSize)
	}); err != nil {
		return err
	}
	summary.RowsLoaded = len(rows)
	util.PipelineRowsTotal.WithLabelValues("load").Add(float64(len(rows)))

	if s.publisher != nil {
		event := &models.RunCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRunCompleted,
				Timestamp: s.now(),
			},
			RunID:        summary.RunID,
			RowsLoaded:   summary.RowsLoaded,
			Customers:    summary.Customers,
			TotalRevenue: summary.TotalRevenue,
			NetRevenue:   summary.NetRevenue,
		}
		if err := s.publisher.PublishRunCompleted(ctx, event); err != nil {
			logger.Warn("Failed to publish run completed event", zap.Error(err))
		}
	}

	if s.reporter != nil {
		if err := s.stage(ctx, "report", func(ctx context.Context) error {
			result, err := s.reporter.Generate(ctx, summary.RunTimestamp)
			if err != nil {
				return err
			}
			summary.ReportFiles = len(result.Files)
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

// stage wraps one step with a span, a latency observation and error context
func (s *PipelineService) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := util.StartSpan(ctx, "PipelineService."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	util.PipelineStageLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to %s: %w", name, err))
	}
	return nil
}
