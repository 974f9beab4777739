package store

import (
	"context"
	"fmt"
	"strings"

	"retail-analytics/internal/models"
	"retail-analytics/internal/util"

	"github.com/jmoiron/sqlx"
)

// DefaultChunkSize is the number of rows per multi-row INSERT
const DefaultChunkSize = 1000

// maxBindParams is the PostgreSQL limit on parameters in one statement
const maxBindParams = 65535

var salesColumns = []string{
	"invoice_no", "stock_code", "description", "quantity", "invoice_date",
	"unit_price", "customer_id", "country", "sale_qty", "return_qty",
	"paid_unit_price", "is_free_item", "revenue", "net_revenue", "total_items",
}

var customerColumns = []string{
	"customer_id", "total_purchases", "total_net_revenue", "total_sale_qty",
	"total_return_qty", "avg_order_value", "recency_days", "return_rate",
	"net_qty", "purchase_frequency_monthly", "customer_value",
}

// ReplaceAll swaps the contents of sales_data and customer_summary in a single
// transaction. Readers see either the previous load or the new one.
func (s *Store) ReplaceAll(ctx context.Context, rows []models.Transaction, customers []models.CustomerSummary, chunkSize int) error {
	ctx, span := util.StartSpan(ctx, "Store.ReplaceAll")
	defer span.End()

	chunkSize = chunkRows(chunkSize, len(salesColumns))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to create tables: %w", err))
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE sales_data, customer_summary"); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to truncate tables: %w", err))
	}

	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		args := make([]interface{}, 0, (end-start)*len(salesColumns))
		for _, r := range rows[start:end] {
			args = append(args,
				r.InvoiceNo, r.StockCode, r.Description, r.Quantity, r.InvoiceDate,
				r.UnitPrice, r.CustomerID, r.Country, r.SaleQty, r.ReturnQty,
				r.PaidUnitPrice, r.IsFreeItem, r.Revenue, r.NetRevenue, r.TotalItems,
			)
		}
		if err := insertChunk(ctx, tx, "sales_data", salesColumns, end-start, args); err != nil {
			return util.FailSpan(span, err)
		}
	}

	for start := 0; start < len(customers); start += chunkSize {
		end := min(start+chunkSize, len(customers))
		args := make([]interface{}, 0, (end-start)*len(customerColumns))
		for _, c := range customers[start:end] {
			args = append(args,
				c.CustomerID, c.TotalPurchases, c.TotalNetRevenue, c.TotalSaleQty,
				c.TotalReturnQty, c.AvgOrderValue, c.RecencyDays, c.ReturnRate,
				c.NetQty, c.PurchaseFrequencyMonthly, c.CustomerValue,
			)
		}
		if err := insertChunk(ctx, tx, "customer_summary", customerColumns, end-start, args); err != nil {
			return util.FailSpan(span, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to commit load: %w", err))
	}
	return nil
}

// chunkRows picks the rows per INSERT so a chunk of width columns stays under
// the bind parameter limit
func chunkRows(requested, width int) int {
	if requested <= 0 {
		requested = DefaultChunkSize
	}
	return min(requested, maxBindParams/width)
}

func insertChunk(ctx context.Context, tx *sqlx.Tx, table string, columns []string, n int, args []interface{}) error {
	query := insertQuery(table, columns, n)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// insertQuery builds "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)" for n rows
func insertQuery(table string, columns []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	param := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		b.WriteByte(')')
	}
	return b.String()
}
