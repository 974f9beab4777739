package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"retail-analytics/internal/models"
	"retail-analytics/internal/report"
	"retail-analytics/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TopCountriesLimit is the number of countries in the batch report
const TopCountriesLimit = 8

// ReportStore is the read side the batch report needs
type ReportStore interface {
	DuplicateCheck(ctx context.Context) (*models.DuplicateCheck, error)
	MonthlySales(ctx context.Context) ([]models.MonthlyRevenue, error)
	TopCountries(ctx context.Context, limit int) ([]models.CountryRevenue, error)
	BatchKPIs(ctx context.Context) (*models.BatchKPIs, error)
}

// ReportResult lists what a report run produced
type ReportResult struct {
	RunTimestamp string             `json:"run_timestamp"`
	Files        []string           `json:"files"`
	KPIs         []models.KPIMetric `json:"kpis"`
	Summary      report.Summary     `json:"summary"`
}

// ReportService queries the loaded tables and writes the batch report files
type ReportService struct {
	store  ReportStore
	dir    string
	logger *zap.Logger
}

// NewReportService creates a new report service writing into dir
func NewReportService(store ReportStore, dir string) *ReportService {
	return &ReportService{
		store:  store,
		dir:    dir,
		logger: util.GetLogger(),
	}
}

// Generate runs the report queries and saves every table, the chart and the
// KPI sheet stamped with runTS
func (s *ReportService) Generate(ctx context.Context, runTS string) (*ReportResult, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Generate")
	defer span.End()

	writer, err := report.NewWriter(s.dir, runTS)
	if err != nil {
		return nil, util.FailSpan(span, err)
	}

	var (
		dup       *models.DuplicateCheck
		monthly   []models.MonthlyRevenue
		countries []models.CountryRevenue
		kpis      *models.BatchKPIs
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dup, err = s.store.DuplicateCheck(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		monthly, err = s.store.MonthlySales(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		countries, err = s.store.TopCountries(gctx, TopCountriesLimit)
		return err
	})
	g.Go(func() error {
		var err error
		kpis, err = s.store.BatchKPIs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to query report data: %w", err))
	}

	result := &ReportResult{RunTimestamp: runTS}
	save := func(name string, header []string, rows [][]string) error {
		paths, err := writer.SaveWithLatest(name, header, rows)
		if err != nil {
			return err
		}
		result.Files = append(result.Files, paths...)
		return nil
	}

	s.logger.Info("Duplicate check",
		zap.Int64("total_rows", dup.TotalRows),
		zap.Int64("unique_rows", dup.UniqueRows))
	if err := save("duplicate_check", []string{"total_rows", "unique_rows"}, [][]string{{
		strconv.FormatInt(dup.TotalRows, 10),
		strconv.FormatInt(dup.UniqueRows, 10),
	}}); err != nil {
		return nil, util.FailSpan(span, err)
	}

	if err := save("monthly_revenue", []string{"month", "monthly_revenue"}, monthlyRecords(monthly)); err != nil {
		return nil, util.FailSpan(span, err)
	}
	if err := save("top_countries", []string{"country", "revenue"}, countryRecords(countries)); err != nil {
		return nil, util.FailSpan(span, err)
	}

	png, err := report.RenderSalesChart(monthly, countries)
	switch {
	case errors.Is(err, report.ErrNoChartData):
		s.logger.Warn("No data available for plotting")
	case err != nil:
		return nil, util.FailSpan(span, err)
	default:
		paths, err := writer.SaveImage("sales_analysis", png)
		if err != nil {
			return nil, util.FailSpan(span, err)
		}
		result.Files = append(result.Files, paths...)
	}

	result.KPIs = BuildKPIMetrics(kpis, runTS)
	for _, m := range result.KPIs {
		s.logger.Info("KPI", zap.String("metric", m.Metric), zap.String("display", m.Display))
	}
	if err := save("dashboard_metrics", []string{"metric", "value", "display", "format", "run_timestamp"}, kpiRecords(result.KPIs)); err != nil {
		return nil, util.FailSpan(span, err)
	}

	result.Summary, err = writer.Summary()
	if err != nil {
		return nil, util.FailSpan(span, err)
	}
	s.logger.Info("Report summary",
		zap.Int("total_files", result.Summary.TotalFiles),
		zap.Int("run_files", result.Summary.RunFiles))

	return result, nil
}

// BuildKPIMetrics turns the headline figures into display rows
func BuildKPIMetrics(kpis *models.BatchKPIs, runTS string) []models.KPIMetric {
	metrics := []struct {
		name   string
		value  *float64
		format string
	}{
		{"Total Revenue", kpis.TotalRevenue, report.FormatCurrency},
		{"Avg Order Value", kpis.AvgOrderValue, report.FormatCurrency},
		{"Total Customers", kpis.TotalCustomers, report.FormatCount},
		{"Total Transactions", kpis.TotalTransactions, report.FormatCount},
	}

	out := make([]models.KPIMetric, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, models.KPIMetric{
			Metric:       m.name,
			Value:        m.value,
			Display:      report.FormatValue(m.value, m.format),
			Format:       m.format,
			RunTimestamp: runTS,
		})
	}
	return out
}

func monthlyRecords(months []models.MonthlyRevenue) [][]string {
	rows := make([][]string, 0, len(months))
	for _, m := range months {
		rows = append(rows, []string{m.Month.Format("2006-01-02 15:04:05"), m.Revenue.String()})
	}
	return rows
}

func countryRecords(countries []models.CountryRevenue) [][]string {
	rows := make([][]string, 0, len(countries))
	for _, c := range countries {
		rows = append(rows, []string{c.Country, c.Revenue.String()})
	}
	return rows
}

func kpiRecords(metrics []models.KPIMetric) [][]string {
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		value := ""
		if m.Value != nil {
			value = strconv.FormatFloat(*m.Value, 'f', -1, 64)
		}
		rows = append(rows, []string{m.Metric, value, m.Display, m.Format, m.RunTimestamp})
	}
	return rows
}
