package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retail-analytics/internal/pipeline"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeRetailWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetList()[0]
	all := append([][]interface{}{{
		"InvoiceNo", "StockCode", "Description", "Quantity",
		"InvoiceDate", "UnitPrice", "CustomerID", "Country",
	}}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	path := filepath.Join(t.TempDir(), "Online Retail.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func retailRows() [][]interface{} {
	return [][]interface{}{
		{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 6, "2010-12-01 08:26:00", 2.55, 17850, "United Kingdom"},
		{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 6, "2010-12-01 08:26:00", 2.55, 17850, "United Kingdom"},
		{"C536379", "22633", "HAND WARMER UNION JACK", -2, "2010-12-02 09:41:00", 1.85, 17850, "United Kingdom"},
		{"A563186", "B", "Adjust bad debt", 1, "2011-08-12 14:51:00", -11062.06, nil, "United Kingdom"},
		{"536414", "22139", nil, 56, "2010-12-01 11:52:00", 0, nil, "United Kingdom"},
	}
}

type pipelineFixture struct {
	svc       *PipelineService
	loader    *fakeLoader
	locker    *fakeLocker
	publisher *fakePublisher
	reporter  *fakeReporter
	outputDir string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	fx := &pipelineFixture{
		loader:    &fakeLoader{},
		locker:    newFakeLocker(),
		publisher: &fakePublisher{},
		reporter:  &fakeReporter{files: []string{"a.csv", "a_latest.csv"}},
		outputDir: filepath.Join(t.TempDir(), "output"),
	}
	fx.svc = NewPipelineService(fx.loader, fx.locker, fx.publisher, fx.reporter, PipelineOptions{
		OutputDir:       fx.outputDir,
		InsertChunkSize: 2,
	})
	fx.svc.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	return fx
}

func TestPipelineRun(t *testing.T) {
	fx := newPipelineFixture(t)
	path := writeRetailWorkbook(t, retailRows())

	summary, err := fx.svc.Run(context.Background(), path)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "20260102_150405", summary.RunTimestamp)
	assert.Equal(t, 5, summary.RowsExtracted)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	assert.Equal(t, 1, summary.NegativePriceRows)
	assert.Equal(t, 3, summary.RowsLoaded)
	assert.Equal(t, 1, summary.Customers)
	assert.Equal(t, 1, summary.ProfitableProducts)
	assert.Equal(t, 1, summary.LossProducts)
	assert.True(t, summary.TotalRevenue.Equal(decimal.RequireFromString("15.30")), summary.TotalRevenue.String())
	assert.True(t, summary.NetRevenue.Equal(decimal.RequireFromString("11.60")), summary.NetRevenue.String())
	assert.Equal(t, 2, summary.ReportFiles)

	assert.Equal(t, 1, fx.loader.calls)
	assert.Len(t, fx.loader.rows, 3)
	assert.Len(t, fx.loader.customers, 1)
	assert.Equal(t, 2, fx.loader.chunkSize)

	require.Len(t, fx.publisher.events, 1)
	event := fx.publisher.events[0]
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, 3, event.RowsLoaded)
	assert.NotEmpty(t, event.EventID)

	assert.Equal(t, "20260102_150405", fx.reporter.runTS)
	assert.FileExists(t, filepath.Join(fx.outputDir, pipeline.CleanedDataFile))
	assert.FileExists(t, filepath.Join(fx.outputDir, pipeline.CustomerSummaryFile))
	assert.Empty(t, fx.locker.held)
}

func TestPipelineRun_RejectsConcurrentRun(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.locker.held[RunLockName] = "other-run"

	_, err := fx.svc.Run(context.Background(), "unused.zip")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Zero(t, fx.loader.calls)
	assert.Equal(t, "other-run", fx.locker.held[RunLockName])
}

func TestPipelineRun_LockBackendDown(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.locker.failErr = errors.New("redis unavailable")

	_, err := fx.svc.Run(context.Background(), "unused.zip")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunInProgress)
}

func TestPipelineRun_DataQualityErrorAbortsBeforeLoad(t *testing.T) {
	fx := newPipelineFixture(t)
	path := writeRetailWorkbook(t, [][]interface{}{
		{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 6, "yesterday", 2.55, 17850, "United Kingdom"},
	})

	_, err := fx.svc.Run(context.Background(), path)
	require.Error(t, err)

	var dq *pipeline.DataQualityError
	require.True(t, errors.As(err, &dq))
	assert.Equal(t, 2, dq.Line)
	assert.Zero(t, fx.loader.calls)
	assert.Empty(t, fx.publisher.events)
	assert.Empty(t, fx.locker.held)
}

func TestPipelineRun_LoadFailure(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.loader.err = errors.New("connection reset")

	_, err := fx.svc.Run(context.Background(), writeRetailWorkbook(t, retailRows()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")
	assert.Empty(t, fx.publisher.events)
	assert.Empty(t, fx.reporter.runTS)
	assert.Empty(t, fx.locker.held)
}

func TestPipelineRun_PublishFailureIsNotFatal(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.publisher.err = errors.New("broker down")

	summary, err := fx.svc.Run(context.Background(), writeRetailWorkbook(t, retailRows()))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RowsLoaded)
}

func TestPipelineRun_MissingArchive(t *testing.T) {
	fx := newPipelineFixture(t)

	_, err := fx.svc.Run(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
