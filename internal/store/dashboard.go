package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retail-analytics/internal/models"
	"retail-analytics/internal/util"

	"github.com/jmoiron/sqlx"
)

// Filter narrows dashboard queries. Zero values leave a dimension open.
// End is inclusive of the whole day it falls on.
type Filter struct {
	Country  string
	Start    time.Time
	End      time.Time
	Products []string
}

// where renders the filter as a WHERE clause with ? placeholders
func (f Filter) where(extra ...string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, f.Country)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "invoice_date >= ?")
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		conds = append(conds, "invoice_date < ?")
		args = append(args, f.End.AddDate(0, 0, 1))
	}
	if len(f.Products) > 0 {
		conds = append(conds, "description IN (?)")
		args = append(args, f.Products)
	}
	conds = append(conds, extra...)

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// bind expands IN lists and rewrites placeholders for postgres
func (s *Store) bind(query string, args []interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand query: %w", err)
	}
	return s.db.Rebind(query), args, nil
}

func (s *Store) selectFiltered(ctx context.Context, name string, dest interface{}, format string, f Filter, extra ...string) error {
	ctx, span := util.StartSpan(ctx, "Store."+name)
	defer span.End()

	where, args := f.where(extra...)
	query, args, err := s.bind(fmt.Sprintf(format, where), args)
	if err != nil {
		return util.FailSpan(span, err)
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to query %s: %w", name, err))
	}
	return nil
}

func (s *Store) getFiltered(ctx context.Context, name string, dest interface{}, format string, f Filter, extra ...string) error {
	ctx, span := util.StartSpan(ctx, "Store."+name)
	defer span.End()

	where, args := f.where(extra...)
	query, args, err := s.bind(fmt.Sprintf(format, where), args)
	if err != nil {
		return util.FailSpan(span, err)
	}
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to query %s: %w", name, err))
	}
	return nil
}

// Countries lists the distinct non-empty countries
func (s *Store) Countries(ctx context.Context) ([]string, error) {
	var countries []string
	err := s.selectFiltered(ctx, "Countries", &countries, `
		SELECT DISTINCT country FROM sales_data %s ORDER BY country`,
		Filter{}, "country IS NOT NULL", "country <> ''")
	return countries, err
}

// Descriptions lists the distinct product descriptions
func (s *Store) Descriptions(ctx context.Context) ([]string, error) {
	var descriptions []string
	err := s.selectFiltered(ctx, "Descriptions", &descriptions, `
		SELECT DISTINCT description FROM sales_data %s ORDER BY description`,
		Filter{}, "description IS NOT NULL")
	return descriptions, err
}

// DateBounds returns the first and last invoice date
func (s *Store) DateBounds(ctx context.Context) (*models.DateBounds, error) {
	var bounds models.DateBounds
	err := s.getFiltered(ctx, "DateBounds", &bounds, `
		SELECT MIN(invoice_date) AS min_date, MAX(invoice_date) AS max_date FROM sales_data %s`,
		Filter{})
	if err != nil {
		return nil, err
	}
	return &bounds, nil
}

// KPITotals sums the dashboard card figures over the filter
func (s *Store) KPITotals(ctx context.Context, f Filter) (*models.KPITotals, error) {
	var totals models.KPITotals
	err := s.getFiltered(ctx, "KPITotals", &totals, `
		SELECT COALESCE(SUM(net_revenue), 0) AS total_revenue,
		       COUNT(*) AS total_transactions,
		       COALESCE(AVG(net_revenue), 0) AS avg_order,
		       COUNT(DISTINCT customer_id) AS total_customers,
		       COALESCE(SUM(sale_qty), 0) AS total_qty,
		       COALESCE(SUM(return_qty), 0) AS return_qty,
		       COALESCE(AVG(total_items), 0) AS avg_items
		FROM sales_data %s`, f)
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// Coverage reports distinct days, rows and net revenue inside the filter
func (s *Store) Coverage(ctx context.Context, f Filter) (*models.PeriodCoverage, error) {
	var cov models.PeriodCoverage
	err := s.getFiltered(ctx, "Coverage", &cov, `
		SELECT COUNT(DISTINCT DATE(invoice_date)) AS days_with_data,
		       COUNT(*) AS total_records,
		       COALESCE(SUM(net_revenue), 0) AS revenue
		FROM sales_data %s`, f)
	if err != nil {
		return nil, err
	}
	return &cov, nil
}

// MonthlyRevenue sums net revenue per calendar month inside the filter
func (s *Store) MonthlyRevenue(ctx context.Context, f Filter) ([]models.MonthlyRevenue, error) {
	var months []models.MonthlyRevenue
	err := s.selectFiltered(ctx, "MonthlyRevenue", &months, `
		SELECT DATE_TRUNC('month', invoice_date) AS month,
		       COALESCE(SUM(net_revenue), 0) AS revenue
		FROM sales_data %s
		GROUP BY 1
		ORDER BY 1`, f)
	return months, err
}

// SalesByWeekday sums revenue per day of week, 0 being Sunday
func (s *Store) SalesByWeekday(ctx context.Context, f Filter) ([]models.WeekdayRevenue, error) {
	var days []models.WeekdayRevenue
	err := s.selectFiltered(ctx, "SalesByWeekday", &days, `
		SELECT EXTRACT(DOW FROM invoice_date)::int AS day_num,
		       COALESCE(SUM(net_revenue), 0) AS revenue,
		       COUNT(*) AS transactions
		FROM sales_data %s
		GROUP BY 1
		ORDER BY 1`, f)
	return days, err
}

// Heatmap sums revenue per weekday and hour
func (s *Store) Heatmap(ctx context.Context, f Filter) ([]models.HeatmapCell, error) {
	var cells []models.HeatmapCell
	err := s.selectFiltered(ctx, "Heatmap", &cells, `
		SELECT EXTRACT(DOW FROM invoice_date)::int AS day_num,
		       EXTRACT(HOUR FROM invoice_date)::int AS hour,
		       COALESCE(SUM(net_revenue), 0) AS revenue
		FROM sales_data %s
		GROUP BY 1, 2
		ORDER BY 1, 2`, f)
	return cells, err
}

// CustomerMonetary returns per-customer frequency and net revenue
func (s *Store) CustomerMonetary(ctx context.Context, f Filter) ([]models.CustomerMonetary, error) {
	var customers []models.CustomerMonetary
	err := s.selectFiltered(ctx, "CustomerMonetary", &customers, `
		SELECT customer_id,
		       COUNT(*) AS frequency,
		       COALESCE(SUM(net_revenue), 0) AS monetary,
		       MAX(invoice_date) AS last_purchase
		FROM sales_data %s
		GROUP BY customer_id
		ORDER BY customer_id`, f, "customer_id IS NOT NULL")
	return customers, err
}

// Geography sums revenue and distinct customers per country
func (s *Store) Geography(ctx context.Context, f Filter) ([]models.CountryRevenue, error) {
	f.Country = ""
	var countries []models.CountryRevenue
	err := s.selectFiltered(ctx, "Geography", &countries, `
		SELECT country,
		       COALESCE(SUM(net_revenue), 0) AS revenue,
		       COUNT(DISTINCT customer_id) AS customers
		FROM sales_data %s
		GROUP BY country
		ORDER BY revenue DESC`, f, "country IS NOT NULL", "country <> 'Unspecified'")
	return countries, err
}

// TopProducts returns the best-selling descriptions. With a product list in
// the filter every listed product is returned, otherwise the top limit.
func (s *Store) TopProducts(ctx context.Context, f Filter, limit int) ([]models.ProductSales, error) {
	format := `
		SELECT description,
		       COALESCE(SUM(net_revenue), 0) AS revenue,
		       COUNT(*) AS transactions
		FROM sales_data %s
		GROUP BY description
		ORDER BY revenue DESC`
	if len(f.Products) == 0 {
		format += fmt.Sprintf(" LIMIT %d", limit)
	}

	var products []models.ProductSales
	err := s.selectFiltered(ctx, "TopProducts", &products, format, f)
	return products, err
}

// ExportRows returns the filtered transactions, newest first
func (s *Store) ExportRows(ctx context.Context, f Filter) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.selectFiltered(ctx, "ExportRows", &rows, `
		SELECT `+strings.Join(salesColumns, ", ")+`
		FROM sales_data %s
		ORDER BY invoice_date DESC`, f)
	return rows, err
}
