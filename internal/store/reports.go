package store

import (
	"context"
	"fmt"

	"retail-analytics/internal/models"
	"retail-analytics/internal/util"
)

// DuplicateCheck compares the loaded row count with the number of distinct
// invoice/stock/customer combinations. Rows without a customer have no key.
func (s *Store) DuplicateCheck(ctx context.Context) (*models.DuplicateCheck, error) {
	ctx, span := util.StartSpan(ctx, "Store.DuplicateCheck")
	defer span.End()

	var check models.DuplicateCheck
	err := s.db.GetContext(ctx, &check, `
		SELECT COUNT(*) AS total_rows,
		       COUNT(DISTINCT invoice_no || '-' || stock_code || '-' || customer_id) AS unique_rows
		FROM sales_data`)
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to run duplicate check: %w", err))
	}
	return &check, nil
}

// MonthlySales sums positive net revenue per calendar month
func (s *Store) MonthlySales(ctx context.Context) ([]models.MonthlyRevenue, error) {
	ctx, span := util.StartSpan(ctx, "Store.MonthlySales")
	defer span.End()

	var months []models.MonthlyRevenue
	err := s.db.SelectContext(ctx, &months, `
		SELECT DATE_TRUNC('month', invoice_date) AS month,
		       SUM(net_revenue) AS revenue
		FROM sales_data
		WHERE net_revenue > 0
		GROUP BY 1
		ORDER BY 1`)
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to query monthly sales: %w", err))
	}
	return months, nil
}

// TopCountries returns the countries with the highest positive net revenue
func (s *Store) TopCountries(ctx context.Context, limit int) ([]models.CountryRevenue, error) {
	ctx, span := util.StartSpan(ctx, "Store.TopCountries")
	defer span.End()

	var countries []models.CountryRevenue
	err := s.db.SelectContext(ctx, &countries, `
		SELECT country,
		       SUM(net_revenue) AS revenue
		FROM sales_data
		WHERE net_revenue > 0
		  AND country IS NOT NULL
		  AND country <> 'Unspecified'
		GROUP BY country
		ORDER BY revenue DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to query top countries: %w", err))
	}
	return countries, nil
}

// BatchKPIs computes the headline figures of the batch report
func (s *Store) BatchKPIs(ctx context.Context) (*models.BatchKPIs, error) {
	ctx, span := util.StartSpan(ctx, "Store.BatchKPIs")
	defer span.End()

	var kpis models.BatchKPIs
	err := s.db.GetContext(ctx, &kpis, `
		SELECT
			(SELECT SUM(net_revenue) FROM sales_data WHERE net_revenue > 0) AS total_revenue,
			(SELECT AVG(net_revenue) FROM sales_data WHERE net_revenue > 0) AS avg_order_value,
			(SELECT COUNT(DISTINCT customer_id) FROM sales_data) AS total_customers,
			(SELECT COUNT(*) FROM sales_data WHERE total_items > 0) AS total_transactions`)
	if err != nil {
		return nil, util.FailSpan(span, fmt.Errorf("failed to query batch kpis: %w", err))
	}
	return &kpis, nil
}
