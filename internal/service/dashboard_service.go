package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"retail-analytics/internal/analysis"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
	"retail-analytics/internal/redisclient"
	"retail-analytics/internal/store"
	"retail-analytics/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrCountryRequired = errors.New("country is required")
	ErrNoData          = errors.New("no sales data loaded")
)

// Comparison modes for the monthly revenue series
const (
	CompareNone = "none"
	ComparePrev = "prev"
	CompareYoY  = "yoy"
)

// Quick date ranges, counted back from the last invoice date
const (
	RangeLast30Days = "30d"
	RangeQuarter    = "quarter"
	RangeYear       = "year"
	RangeAll        = "all"
)

// TopProductsLimit is the length of the unfiltered top products list
const TopProductsLimit = 10

// DefaultCompletenessThreshold is the share of days, in percent, a previous
// period needs before its growth figure is trusted
const DefaultCompletenessThreshold = 80.0

// DashboardStore is the read side behind the dashboard
type DashboardStore interface {
	Countries(ctx context.Context) ([]string, error)
	Descriptions(ctx context.Context) ([]string, error)
	DateBounds(ctx context.Context) (*models.DateBounds, error)
	KPITotals(ctx context.Context, f store.Filter) (*models.KPITotals, error)
	Coverage(ctx context.Context, f store.Filter) (*models.PeriodCoverage, error)
	MonthlyRevenue(ctx context.Context, f store.Filter) ([]models.MonthlyRevenue, error)
	SalesByWeekday(ctx context.Context, f store.Filter) ([]models.WeekdayRevenue, error)
	Heatmap(ctx context.Context, f store.Filter) ([]models.HeatmapCell, error)
	CustomerMonetary(ctx context.Context, f store.Filter) ([]models.CustomerMonetary, error)
	Geography(ctx context.Context, f store.Filter) ([]models.CountryRevenue, error)
	TopProducts(ctx context.Context, f store.Filter, limit int) ([]models.ProductSales, error)
	ExportRows(ctx context.Context, f store.Filter) ([]models.Transaction, error)
}

// DashboardCache stores rendered views as JSON
type DashboardCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardOptions are the values the filters can take
type DashboardOptions struct {
	Countries []string   `json:"countries"`
	Products  []string   `json:"products"`
	MinDate   *time.Time `json:"min_date"`
	MaxDate   *time.Time `json:"max_date"`
}

// DateRange is an inclusive pair of days
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// KPIs are the dashboard cards for one filter
type KPIs struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	Transactions       int64           `json:"transactions"`
	AvgOrder           decimal.Decimal `json:"avg_order"`
	Customers          int64           `json:"customers"`
	ReturnRate         float64         `json:"return_rate"`
	AvgItems           float64         `json:"avg_items"`
	RevenuePerCustomer decimal.Decimal `json:"revenue_per_customer"`
	// Growth is nil when the previous period earned nothing
	Growth *float64 `json:"growth"`
	// GrowthIncomplete marks growth measured against a sparse previous period
	GrowthIncomplete bool    `json:"growth_incomplete"`
	PreviousCoverage float64 `json:"previous_coverage"`
}

// MonthlySeries is the revenue trend with an optional comparison trend
type MonthlySeries struct {
	Compare    string                  `json:"compare"`
	Current    []models.MonthlyRevenue `json:"current"`
	Comparison []models.MonthlyRevenue `json:"comparison,omitempty"`
}

// HeatmapMatrix holds revenue indexed by [weekday][hour], Sunday first
type HeatmapMatrix struct {
	Days    []string    `json:"days"`
	Hours   []int       `json:"hours"`
	Revenue [][]float64 `json:"revenue"`
}

// DashboardService answers the interactive views, caching each answer
type DashboardService struct {
	store     DashboardStore
	cache     DashboardCache
	ttl       time.Duration
	threshold float64
	logger    *zap.Logger
}

// NewDashboardService creates a new dashboard service. cache may be nil.
func NewDashboardService(store DashboardStore, cache DashboardCache, cacheTTL time.Duration, completenessThreshold float64) *DashboardService {
	if completenessThreshold <= 0 {
		completenessThreshold = DefaultCompletenessThreshold
	}
	return &DashboardService{
		store:     store,
		cache:     cache,
		ttl:       cacheTTL,
		threshold: completenessThreshold,
		logger:    util.GetLogger(),
	}
}

// cached serves view from the cache or loads and stores it. Cache failures
// only cost a database round trip.
func cached[T any](ctx context.Context, s *DashboardService, view, key string, load func(context.Context) (T, error)) (T, error) {
	cacheKey := fmt.Sprintf("dashboard:%s:%s", view, key)

	var out T
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, cacheKey, &out)
		switch {
		case err == nil:
			util.DashboardCacheTotal.WithLabelValues(view, "hit").Inc()
			return out, nil
		case errors.Is(err, redisclient.ErrCacheMiss):
			util.DashboardCacheTotal.WithLabelValues(view, "miss").Inc()
		default:
			util.DashboardCacheTotal.WithLabelValues(view, "error").Inc()
			s.logger.Warn("Dashboard cache read failed, using database",
				zap.String("key", cacheKey), zap.Error(err))
		}
	}

	start := time.Now()
	out, err := load(ctx)
	util.DashboardQueryLatency.WithLabelValues(view).Observe(time.Since(start).Seconds())
	if err != nil {
		return out, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, out, s.ttl); err != nil {
			s.logger.Warn("Dashboard cache write failed",
				zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return out, nil
}

// filterKey renders f deterministically for cache keys
func filterKey(f store.Filter, extra ...string) string {
	v := url.Values{}
	v.Set("country", f.Country)
	if !f.Start.IsZero() {
		v.Set("start", f.Start.Format(time.DateOnly))
	}
	if !f.End.IsZero() {
		v.Set("end", f.End.Format(time.DateOnly))
	}
	if len(f.Products) > 0 {
		products := append([]string(nil), f.Products...)
		sort.Strings(products)
		v["products"] = products
	}
	for i := 0; i+1 < len(extra); i += 2 {
		v.Set(extra[i], extra[i+1])
	}
	return v.Encode()
}

func requireCountry(f store.Filter) error {
	if strings.TrimSpace(f.Country) == "" {
		return ErrCountryRequired
	}
	return nil
}

// Options lists countries, products and the loaded date span
func (s *DashboardService) Options(ctx context.Context) (*DashboardOptions, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Options")
	defer span.End()

	opts, err := cached(ctx, s, "options", "all", func(ctx context.Context) (*DashboardOptions, error) {
		countries, err := s.store.Countries(ctx)
		if err != nil {
			return nil, err
		}
		products, err := s.store.Descriptions(ctx)
		if err != nil {
			return nil, err
		}
		bounds, err := s.store.DateBounds(ctx)
		if err != nil {
			return nil, err
		}
		return &DashboardOptions{
			Countries: countries,
			Products:  products,
			MinDate:   bounds.MinDate,
			MaxDate:   bounds.MaxDate,
		}, nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load options: %w", err))
	}
	return opts, nil
}

// ResolveRange turns a quick range into days ending on the last invoice
// date. Unknown names fall back to the full span.
func (s *DashboardService) ResolveRange(ctx context.Context, quick string) (*DateRange, error) {
	opts, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}
	if opts.MinDate == nil || opts.MaxDate == nil {
		return nil, ErrNoData
	}

	end := truncateDay(*opts.MaxDate)
	switch quick {
	case RangeLast30Days:
		return &DateRange{Start: end.AddDate(0, 0, -30), End: end}, nil
	case RangeQuarter:
		return &DateRange{Start: end.AddDate(0, 0, -90), End: end}, nil
	case RangeYear:
		return &DateRange{Start: end.AddDate(0, 0, -365), End: end}, nil
	default:
		return &DateRange{Start: truncateDay(*opts.MinDate), End: end}, nil
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// previousWindow is the window of the same length ending the day before
// f.Start, and its length in days. ok is false without a bounded range.
func previousWindow(f store.Filter) (prev store.Filter, days int, ok bool) {
	if f.Start.IsZero() || f.End.IsZero() {
		return store.Filter{}, 0, false
	}
	days = int(truncateDay(f.End).Sub(truncateDay(f.Start)) / (24 * time.Hour))
	prev = store.Filter{
		Country: f.Country,
		Start:   f.Start.AddDate(0, 0, -days),
		End:     f.Start.AddDate(0, 0, -1),
	}
	return prev, days, true
}

// KPIs computes the dashboard cards and growth against the previous period
func (s *DashboardService) KPIs(ctx context.Context, f store.Filter) (*KPIs, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.KPIs")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}
	f.Products = nil

	kpis, err := cached(ctx, s, "kpis", filterKey(f), func(ctx context.Context) (*KPIs, error) {
		totals, err := s.store.KPITotals(ctx, f)
		if err != nil {
			return nil, err
		}

		out := buildKPIs(totals)

		prev, days, ok := previousWindow(f)
		if !ok {
			return out, nil
		}
		cov, err := s.store.Coverage(ctx, prev)
		if err != nil {
			return nil, err
		}
		applyGrowth(out, totals.TotalRevenue, cov, days, s.threshold)
		return out, nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to compute kpis: %w", err))
	}
	return kpis, nil
}

func buildKPIs(t *models.KPITotals) *KPIs {
	out := &KPIs{
		TotalRevenue: t.TotalRevenue,
		Transactions: t.TotalTransactions,
		AvgOrder:     t.AvgOrder,
		Customers:    t.TotalCustomers,
		AvgItems:     math.Round(t.AvgItems),
	}
	if t.TotalQty > 0 {
		out.ReturnRate = float64(t.ReturnQty) / float64(t.TotalQty) * 100
	}
	if t.TotalCustomers > 0 {
		out.RevenuePerCustomer = t.TotalRevenue.Div(decimal.NewFromInt(t.TotalCustomers))
	}
	return out
}

func applyGrowth(out *KPIs, current decimal.Decimal, prev *models.PeriodCoverage, days int, threshold float64) {
	if days > 0 {
		out.PreviousCoverage = float64(prev.DaysWithData) / float64(days) * 100
	}
	if !prev.Revenue.IsPositive() {
		return
	}
	growth := current.Sub(prev.Revenue).Div(prev.Revenue).InexactFloat64() * 100
	out.Growth = &growth
	out.GrowthIncomplete = out.PreviousCoverage < threshold
}

// MonthlyRevenue returns the monthly trend plus a comparison trend for
// compare = prev or yoy when the filter has a date range
func (s *DashboardService) MonthlyRevenue(ctx context.Context, f store.Filter, compare string) (*MonthlySeries, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.MonthlyRevenue")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}
	f.Products = nil
	if compare == "" {
		compare = CompareNone
	}

	series, err := cached(ctx, s, "monthly-revenue", filterKey(f, "compare", compare), func(ctx context.Context) (*MonthlySeries, error) {
		current, err := s.store.MonthlyRevenue(ctx, f)
		if err != nil {
			return nil, err
		}
		out := &MonthlySeries{Compare: compare, Current: current}

		var other store.Filter
		switch compare {
		case ComparePrev:
			prev, _, ok := previousWindow(f)
			if !ok {
				return out, nil
			}
			other = prev
		case CompareYoY:
			if f.Start.IsZero() || f.End.IsZero() {
				return out, nil
			}
			other = store.Filter{Country: f.Country, Start: f.Start.AddDate(-1, 0, 0), End: f.End.AddDate(-1, 0, 0)}
		default:
			return out, nil
		}

		out.Comparison, err = s.store.MonthlyRevenue(ctx, other)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load monthly revenue: %w", err))
	}
	return series, nil
}

// SalesByWeekday returns revenue and transactions per day of week
func (s *DashboardService) SalesByWeekday(ctx context.Context, f store.Filter) ([]models.WeekdayRevenue, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.SalesByWeekday")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}
	f.Products = nil

	days, err := cached(ctx, s, "sales-by-weekday", filterKey(f), func(ctx context.Context) ([]models.WeekdayRevenue, error) {
		days, err := s.store.SalesByWeekday(ctx, f)
		if err != nil {
			return nil, err
		}
		for i := range days {
			days[i].DayName = time.Weekday(days[i].DayNum).String()
		}
		return days, nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load weekday sales: %w", err))
	}
	return days, nil
}

// Heatmap returns revenue by weekday and hour of day
func (s *DashboardService) Heatmap(ctx context.Context, f store.Filter) (*HeatmapMatrix, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Heatmap")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}
	f.Products = nil

	matrix, err := cached(ctx, s, "heatmap", filterKey(f), func(ctx context.Context) (*HeatmapMatrix, error) {
		cells, err := s.store.Heatmap(ctx, f)
		if err != nil {
			return nil, err
		}
		return buildHeatmap(cells), nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load heatmap: %w", err))
	}
	return matrix, nil
}

func buildHeatmap(cells []models.HeatmapCell) *HeatmapMatrix {
	m := &HeatmapMatrix{
		Days:    make([]string, 7),
		Hours:   make([]int, 24),
		Revenue: make([][]float64, 7),
	}
	for d := range m.Days {
		m.Days[d] = time.Weekday(d).String()
		m.Revenue[d] = make([]float64, 24)
	}
	for h := range m.Hours {
		m.Hours[h] = h
	}
	for _, c := range cells {
		if c.DayNum < 0 || c.DayNum > 6 || c.Hour < 0 || c.Hour > 23 {
			continue
		}
		m.Revenue[c.DayNum][c.Hour] += c.Revenue.InexactFloat64()
	}
	return m
}

// Segments buckets the filter's customers into monetary quartiles
func (s *DashboardService) Segments(ctx context.Context, f store.Filter) ([]analysis.SegmentSummary, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Segments")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}
	f.Products = nil

	segments, err := cached(ctx, s, "segments", filterKey(f), func(ctx context.Context) ([]analysis.SegmentSummary, error) {
		customers, err := s.store.CustomerMonetary(ctx, f)
		if err != nil {
			return nil, err
		}
		monetary := make([]decimal.Decimal, len(customers))
		for i, c := range customers {
			monetary[i] = c.Monetary
		}
		return analysis.Segment(monetary), nil
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load segments: %w", err))
	}
	return segments, nil
}

// Geography returns revenue and customers for every country in the date
// range. The country filter does not apply.
func (s *DashboardService) Geography(ctx context.Context, f store.Filter) ([]models.CountryRevenue, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Geography")
	defer span.End()

	f.Country = ""
	f.Products = nil

	countries, err := cached(ctx, s, "geography", filterKey(f), func(ctx context.Context) ([]models.CountryRevenue, error) {
		return s.store.Geography(ctx, f)
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load geography: %w", err))
	}
	return countries, nil
}

// TopProducts returns the best sellers, or exactly the products in the filter
func (s *DashboardService) TopProducts(ctx context.Context, f store.Filter) ([]models.ProductSales, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.TopProducts")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return nil, err
	}

	products, err := cached(ctx, s, "top-products", filterKey(f), func(ctx context.Context) ([]models.ProductSales, error) {
		return s.store.TopProducts(ctx, f, TopProductsLimit)
	})
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to load top products: %w", err))
	}
	return products, nil
}

// ExportFilename names a CSV export for f
func ExportFilename(f store.Filter) string {
	name := "sales_data_" + strings.ReplaceAll(f.Country, " ", "_")
	if !f.Start.IsZero() && !f.End.IsZero() {
		name += fmt.Sprintf("_%s_to_%s", f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly))
	}
	return name + ".csv"
}

// ExportCSV writes the filtered transactions to w, newest first
func (s *DashboardService) ExportCSV(ctx context.Context, f store.Filter, w io.Writer) error {
	ctx, span := util.StartSpan(ctx, "DashboardService.ExportCSV")
	defer span.End()

	if err := requireCountry(f); err != nil {
		return err
	}
	f.Products = nil

	rows, err := s.store.ExportRows(ctx, f)
	if err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to load export rows: %w", err))
	}
	if err := pipeline.WriteTransactionsCSV(w, rows); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to write export: %w", err))
	}

	s.logger.Info("Exported sales data",
		zap.String("country", f.Country),
		zap.Int("rows", len(rows)))
	return nil
}
