package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DataQualityError reports a cell that cannot be coerced to its column type.
// It aborts the run; rows are never dropped silently.
type DataQualityError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("line %d: invalid %s %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *DataQualityError) Unwrap() error {
	return e.Err
}

const maxExcelSerial = 2958465

// textual timestamp layouts accepted besides Excel serial numbers
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"2006-01-02",
}

// CleanStats counts what the cleaner did
type CleanStats struct {
	InputRows         int
	DuplicatesRemoved int
	OutputRows        int
}

// rowKey covers every source column so that only exact duplicates collide
type rowKey struct {
	invoiceNo   string
	stockCode   string
	description string
	quantity    int
	invoiceDate int64
	unitPrice   string
	hasCustomer bool
	customerID  string
	country     string
}

// Clean fills missing values, coerces column types and drops exact duplicates
func Clean(raw []models.RawRow) ([]models.Transaction, CleanStats, error) {
	stats := CleanStats{InputRows: len(raw)}

	seen := make(map[rowKey]struct{}, len(raw))
	rows := make([]models.Transaction, 0, len(raw))

	for _, r := range raw {
		tx, err := cleanRow(r)
		if err != nil {
			return nil, stats, err
		}

		key := rowKey{
			invoiceNo:   tx.InvoiceNo,
			stockCode:   tx.StockCode,
			description: tx.Description,
			quantity:    tx.Quantity,
			invoiceDate: tx.InvoiceDate.UnixNano(),
			unitPrice:   tx.UnitPrice.String(),
			hasCustomer: tx.CustomerID != nil,
			country:     tx.Country,
		}
		if tx.CustomerID != nil {
			key.customerID = *tx.CustomerID
		}
		if _, dup := seen[key]; dup {
			stats.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, tx)
	}

	stats.OutputRows = len(rows)
	return rows, stats, nil
}

func cleanRow(r models.RawRow) (models.Transaction, error) {
	quantity, err := parseQuantity(r.Quantity)
	if err != nil {
		return models.Transaction{}, &DataQualityError{Line: r.Line, Column: "Quantity", Value: r.Quantity, Err: err}
	}

	price, err := parsePrice(r.UnitPrice)
	if err != nil {
		return models.Transaction{}, &DataQualityError{Line: r.Line, Column: "UnitPrice", Value: r.UnitPrice, Err: err}
	}

	date, err := ParseInvoiceDate(r.InvoiceDate)
	if err != nil {
		return models.Transaction{}, &DataQualityError{Line: r.Line, Column: "InvoiceDate", Value: r.InvoiceDate, Err: err}
	}

	description := r.Description
	if description == "" {
		description = models.UnknownProduct
	}

	return models.Transaction{
		InvoiceNo:   normalizeID(r.InvoiceNo),
		StockCode:   normalizeID(r.StockCode),
		Description: description,
		Quantity:    quantity,
		InvoiceDate: date,
		UnitPrice:   price,
		CustomerID:  customerID(r.CustomerID),
		Country:     r.Country,
	}, nil
}

func parseQuantity(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty value")
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("out of range")
		}
		return n, nil
	}
	f, err := parseFinite(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("out of range")
	}
	return int(f), nil
}

// parseFinite is strconv.ParseFloat without NaN and infinities
func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// parsePrice goes through float64 so spreadsheet noise such as
// 2.5499999999999998 comes back as 2.55
func parsePrice(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	f, err := parseFinite(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

// ParseInvoiceDate accepts an Excel serial date or one of the known layouts
func ParseInvoiceDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		// 9999-12-31 is the last day Excel can represent
		if !(serial > 0 && serial <= maxExcelSerial) {
			return time.Time{}, fmt.Errorf("serial date out of range")
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// serial dates carry float noise below the second
		return t.Round(time.Second), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date format")
}

// normalizeID strips the ".0" a numeric identifier picks up in a spreadsheet
func normalizeID(v string) string {
	if whole, ok := strings.CutSuffix(v, ".0"); ok {
		if _, err := strconv.Atoi(whole); err == nil {
			return whole
		}
	}
	return v
}

func customerID(v string) *string {
	if v == "" {
		return nil
	}
	id := normalizeID(v)
	return &id
}
