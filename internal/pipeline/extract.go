package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"retail-analytics/internal/models"
	"retail-analytics/internal/util"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	ErrNoWorkbook        = errors.New("archive contains no xlsx workbook")
	ErrMultipleWorkbooks = errors.New("archive contains more than one xlsx workbook")
	ErrNoWorksheet       = errors.New("workbook has no worksheet")
	ErrMissingColumn     = errors.New("required column missing")
)

// column keys, matched case-insensitively against the header row
const (
	colInvoiceNo   = "invoiceno"
	colStockCode   = "stockcode"
	colDescription = "description"
	colQuantity    = "quantity"
	colInvoiceDate = "invoicedate"
	colUnitPrice   = "unitprice"
	colCustomerID  = "customerid"
	colCountry     = "country"
)

var requiredColumns = []string{
	colInvoiceNo, colStockCode, colDescription, colQuantity,
	colInvoiceDate, colUnitPrice, colCustomerID, colCountry,
}

// Extract loads the transaction sheet from a zip archive or a bare xlsx file
func Extract(ctx context.Context, path string) ([]models.RawRow, error) {
	_, span := util.StartSpan(ctx, "pipeline.Extract")
	defer span.End()

	logger := util.GetLogger()

	var workbook []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		workbook, err = readWorkbookFromArchive(path)
	} else {
		workbook, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	rows, err := ReadWorkbook(bytes.NewReader(workbook))
	if err != nil {
		return nil, err
	}

	logger.Info("Workbook extracted",
		zap.String("path", path),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// readWorkbookFromArchive returns the bytes of the single xlsx entry in the archive
func readWorkbookFromArchive(path string) ([]byte, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	var entry *zip.File
	for _, f := range archive.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".xlsx") {
			continue
		}
		// skip spreadsheet lock files such as "~$Online Retail.xlsx"
		if strings.HasPrefix(filepath.Base(f.Name), "~$") {
			continue
		}
		if entry != nil {
			return nil, ErrMultipleWorkbooks
		}
		entry = f
	}
	if entry == nil {
		return nil, ErrNoWorkbook
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// ReadWorkbook parses the first sheet of an xlsx workbook into raw rows
func ReadWorkbook(r io.Reader) ([]models.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheet
	}

	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, ErrNoWorksheet
	}

	columns, err := mapColumns(cells[0])
	if err != nil {
		return nil, err
	}

	rows := make([]models.RawRow, 0, len(cells)-1)
	for i, record := range cells[1:] {
		if isBlank(record) {
			continue
		}
		cell := func(key string) string {
			idx := columns[key]
			if idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		rows = append(rows, models.RawRow{
			Line:        i + 2,
			InvoiceNo:   cell(colInvoiceNo),
			StockCode:   cell(colStockCode),
			Description: cell(colDescription),
			Quantity:    cell(colQuantity),
			InvoiceDate: cell(colInvoiceDate),
			UnitPrice:   cell(colUnitPrice),
			CustomerID:  cell(colCustomerID),
			Country:     cell(colCountry),
		})
	}

	return rows, nil
}

// mapColumns maps header names to column positions
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
		key = strings.ReplaceAll(key, "_", "")
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}

	for _, key := range requiredColumns {
		if _, ok := columns[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, key)
		}
	}
	return columns, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
