package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DuplicateCheck counts loaded rows against distinct invoice/stock/customer keys
type DuplicateCheck struct {
	TotalRows  int64 `db:"total_rows" json:"total_rows"`
	UniqueRows int64 `db:"unique_rows" json:"unique_rows"`
}

// MonthlyRevenue is revenue summed over one calendar month
type MonthlyRevenue struct {
	Month   time.Time       `db:"month" json:"month"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
}

// CountryRevenue is revenue summed per country
type CountryRevenue struct {
	Country   string          `db:"country" json:"country"`
	Revenue   decimal.Decimal `db:"revenue" json:"revenue"`
	Customers int64           `db:"customers" json:"customers,omitempty"`
}

// WeekdayRevenue is revenue per day of week (0 = Sunday)
type WeekdayRevenue struct {
	DayNum       int             `db:"day_num" json:"day_num"`
	DayName      string          `db:"-" json:"day_name"`
	Revenue      decimal.Decimal `db:"revenue" json:"revenue"`
	Transactions int64           `db:"transactions" json:"transactions"`
}

// HeatmapCell is revenue for one weekday/hour pair
type HeatmapCell struct {
	DayNum  int             `db:"day_num" json:"day_num"`
	Hour    int             `db:"hour" json:"hour"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
}

// ProductSales is revenue per product description
type ProductSales struct {
	Description  string          `db:"description" json:"description"`
	Revenue      decimal.Decimal `db:"revenue" json:"revenue"`
	Transactions int64           `db:"transactions" json:"transactions"`
}

// CustomerMonetary is the per-customer input for segmentation
type CustomerMonetary struct {
	CustomerID   string          `db:"customer_id" json:"customer_id"`
	Frequency    int64           `db:"frequency" json:"frequency"`
	Monetary     decimal.Decimal `db:"monetary" json:"monetary"`
	LastPurchase time.Time       `db:"last_purchase" json:"last_purchase"`
}

// KPITotals are the raw sums behind the dashboard cards
type KPITotals struct {
	TotalRevenue      decimal.Decimal `db:"total_revenue"`
	TotalTransactions int64           `db:"total_transactions"`
	AvgOrder          decimal.Decimal `db:"avg_order"`
	TotalCustomers    int64           `db:"total_customers"`
	TotalQty          int64           `db:"total_qty"`
	ReturnQty         int64           `db:"return_qty"`
	AvgItems          float64         `db:"avg_items"`
}

// PeriodCoverage describes how much data a date window holds
type PeriodCoverage struct {
	DaysWithData int64           `db:"days_with_data"`
	TotalRecords int64           `db:"total_records"`
	Revenue      decimal.Decimal `db:"revenue"`
}

// DateBounds is the first and last invoice date in the store
type DateBounds struct {
	MinDate *time.Time `db:"min_date" json:"min_date"`
	MaxDate *time.Time `db:"max_date" json:"max_date"`
}

// BatchKPIs are the headline figures of the batch report. A nil field means
// the aggregate had no rows to work on.
type BatchKPIs struct {
	TotalRevenue      *float64 `db:"total_revenue"`
	AvgOrderValue     *float64 `db:"avg_order_value"`
	TotalCustomers    *float64 `db:"total_customers"`
	TotalTransactions *float64 `db:"total_transactions"`
}

// KPIMetric is one row of the batch dashboard report
type KPIMetric struct {
	Metric       string   `json:"metric"`
	Value        *float64 `json:"value"`
	Display      string   `json:"display"`
	Format       string   `json:"format"`
	RunTimestamp string   `json:"run_timestamp"`
}
