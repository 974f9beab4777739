package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProduct replaces a missing description
const UnknownProduct = "Unknown Product"

// RawRow is one spreadsheet line before cleaning. Empty string means null.
type RawRow struct {
	Line        int
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// Transaction represents one invoice line item with its derived fields
type Transaction struct {
	InvoiceNo   string          `db:"invoice_no" json:"invoice_no"`
	StockCode   string          `db:"stock_code" json:"stock_code"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	InvoiceDate time.Time       `db:"invoice_date" json:"invoice_date"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	CustomerID  *string         `db:"customer_id" json:"customer_id"`
	Country     string          `db:"country" json:"country"`

	SaleQty       int             `db:"sale_qty" json:"sale_qty"`
	ReturnQty     int             `db:"return_qty" json:"return_qty"`
	PaidUnitPrice decimal.Decimal `db:"paid_unit_price" json:"paid_unit_price"`
	IsFreeItem    bool            `db:"is_free_item" json:"is_free_item"`
	Revenue       decimal.Decimal `db:"revenue" json:"revenue"`
	NetRevenue    decimal.Decimal `db:"net_revenue" json:"net_revenue"`
	TotalItems    int             `db:"total_items" json:"total_items"`
}

// HasCustomer reports whether the row belongs to an identified customer
func (t *Transaction) HasCustomer() bool {
	return t.CustomerID != nil
}

// CustomerSummary represents one known customer's aggregate
type CustomerSummary struct {
	CustomerID               string          `db:"customer_id" json:"customer_id"`
	TotalPurchases           int             `db:"total_purchases" json:"total_purchases"`
	TotalNetRevenue          decimal.Decimal `db:"total_net_revenue" json:"total_net_revenue"`
	TotalSaleQty             int             `db:"total_sale_qty" json:"total_sale_qty"`
	TotalReturnQty           int             `db:"total_return_qty" json:"total_return_qty"`
	AvgOrderValue            decimal.Decimal `db:"avg_order_value" json:"avg_order_value"`
	RecencyDays              int             `db:"recency_days" json:"recency_days"`
	ReturnRate               *float64        `db:"return_rate" json:"return_rate"`
	NetQty                   int             `db:"net_qty" json:"net_qty"`
	PurchaseFrequencyMonthly float64         `db:"purchase_frequency_monthly" json:"purchase_frequency_monthly"`
	CustomerValue            string          `db:"customer_value" json:"customer_value"`
}

// Customer value labels
const (
	CustomerValuePositive = "Positive"
	CustomerValueNegative = "Negative"
)

// ProductRevenue is a stock code with its summed net revenue
type ProductRevenue struct {
	StockCode  string          `json:"stock_code"`
	NetRevenue decimal.Decimal `json:"net_revenue"`
}

// RunSummary describes a finished pipeline run
type RunSummary struct {
	RunID              string          `json:"run_id"`
	RunTimestamp       string          `json:"run_timestamp"`
	RowsExtracted      int             `json:"rows_extracted"`
	DuplicatesRemoved  int             `json:"duplicates_removed"`
	NegativePriceRows  int             `json:"negative_price_rows"`
	RowsLoaded         int             `json:"rows_loaded"`
	Customers          int             `json:"customers"`
	ProfitableProducts int             `json:"profitable_products"`
	LossProducts       int             `json:"loss_products"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	NetRevenue         decimal.Decimal `json:"net_revenue"`
	ReportFiles        int             `json:"report_files"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
}
