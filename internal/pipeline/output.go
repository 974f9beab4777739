package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"retail-analytics/internal/models"
)

// Output file names written next to each load
const (
	CleanedDataFile     = "cleaned_retail_data.csv"
	CustomerSummaryFile = "customer_summary.csv"
)

const timestampLayout = "2006-01-02 15:04:05"

// TransactionHeader is the column order of transaction CSV exports
var TransactionHeader = []string{
	"invoice_no", "stock_code", "description", "quantity", "invoice_date",
	"unit_price", "customer_id", "country", "sale_qty", "return_qty",
	"paid_unit_price", "is_free_item", "revenue", "net_revenue", "total_items",
}

// CustomerHeader is the column order of the customer summary CSV
var CustomerHeader = []string{
	"customer_id", "total_purchases", "total_net_revenue", "total_sale_qty",
	"total_return_qty", "avg_order_value", "recency_days", "return_rate",
	"net_qty", "purchase_frequency_monthly", "customer_value",
}

// WriteTransactionsCSV writes rows with a header. Missing customers are empty.
func WriteTransactionsCSV(w io.Writer, rows []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TransactionHeader); err != nil {
		return err
	}

	for _, r := range rows {
		customer := ""
		if r.CustomerID != nil {
			customer = *r.CustomerID
		}
		record := []string{
			r.InvoiceNo,
			r.StockCode,
			r.Description,
			strconv.Itoa(r.Quantity),
			r.InvoiceDate.Format(timestampLayout),
			r.UnitPrice.String(),
			customer,
			r.Country,
			strconv.Itoa(r.SaleQty),
			strconv.Itoa(r.ReturnQty),
			r.PaidUnitPrice.String(),
			strconv.FormatBool(r.IsFreeItem),
			r.Revenue.String(),
			r.NetRevenue.String(),
			strconv.Itoa(r.TotalItems),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCustomersCSV writes customer summaries with a header. An undefined
// return rate is empty.
func WriteCustomersCSV(w io.Writer, customers []models.CustomerSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CustomerHeader); err != nil {
		return err
	}

	for _, c := range customers {
		returnRate := ""
		if c.ReturnRate != nil {
			returnRate = strconv.FormatFloat(*c.ReturnRate, 'f', -1, 64)
		}
		record := []string{
			c.CustomerID,
			strconv.Itoa(c.TotalPurchases),
			c.TotalNetRevenue.String(),
			strconv.Itoa(c.TotalSaleQty),
			strconv.Itoa(c.TotalReturnQty),
			c.AvgOrderValue.String(),
			strconv.Itoa(c.RecencyDays),
			returnRate,
			strconv.Itoa(c.NetQty),
			strconv.FormatFloat(c.PurchaseFrequencyMonthly, 'f', -1, 64),
			c.CustomerValue,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveOutputs writes the cleaned transactions and customer summary CSVs into
// dir and returns their paths
func SaveOutputs(dir string, rows []models.Transaction, customers []models.CustomerSummary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder %s: %w", dir, err)
	}

	cleanedPath := filepath.Join(dir, CleanedDataFile)
	if err := writeCSVFile(cleanedPath, func(w io.Writer) error { return WriteTransactionsCSV(w, rows) }); err != nil {
		return nil, err
	}

	customerPath := filepath.Join(dir, CustomerSummaryFile)
	if err := writeCSVFile(customerPath, func(w io.Writer) error { return WriteCustomersCSV(w, customers) }); err != nil {
		return nil, err
	}

	return []string{cleanedPath, customerPath}, nil
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
