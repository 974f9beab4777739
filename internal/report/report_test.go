package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name   string
		value  *float64
		format string
		want   string
	}{
		{"nil", nil, FormatCurrency, "0"},
		{"currency", f64(1234.5678), FormatCurrency, "$1,234.57"},
		{"currency small", f64(9.5), FormatCurrency, "$9.50"},
		{"currency millions", f64(8911407.904), FormatCurrency, "$8,911,407.90"},
		{"currency negative", f64(-1234.5), FormatCurrency, "$-1,234.50"},
		{"count", f64(4372), FormatCount, "4,372"},
		{"count truncates", f64(999.9), FormatCount, "999"},
		{"percent", f64(12.345), FormatPercent, "12.3%"},
		{"days", f64(12.9), FormatDays, "12 days"},
		{"plain", f64(3.14159), "", "3.14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value, tt.format))
		})
	}
}

func TestRunTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "20260102_150405", RunTimestamp(ts))
}

func TestSaveWithLatest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "20260102_150405")
	require.NoError(t, err)

	paths, err := w.SaveWithLatest("top_countries",
		[]string{"country", "revenue"},
		[][]string{{"Netherlands", "285446.34"}, {"EIRE", "283453.96"}})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "top_countries_20260102_150405.csv"),
		filepath.Join(dir, "top_countries_latest.csv"),
	}, paths)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"country", "revenue"},
			{"Netherlands", "285446.34"},
			{"EIRE", "283453.96"},
		}, records)
	}
}

func TestSaveWithLatest_SkipsEmptyTable(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "20260102_150405")
	require.NoError(t, err)

	paths, err := w.SaveWithLatest("monthly_revenue", []string{"month", "revenue"}, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old_20250101_000000.csv"), []byte("x"), 0o644))

	w, err := NewWriter(dir, "20260102_150405")
	require.NoError(t, err)
	_, err = w.SaveWithLatest("duplicate_check", []string{"total_rows"}, [][]string{{"10"}})
	require.NoError(t, err)

	s, err := w.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 1, s.RunFiles)
}

func TestRenderSalesChart(t *testing.T) {
	monthly := []models.MonthlyRevenue{
		{Month: time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC), Revenue: decimal.NewFromInt(748957)},
		{Month: time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), Revenue: decimal.NewFromInt(560000)},
	}
	countries := []models.CountryRevenue{
		{Country: "United Kingdom", Revenue: decimal.NewFromInt(8187806)},
		{Country: "Netherlands", Revenue: decimal.NewFromInt(284661)},
	}

	png, err := RenderSalesChart(monthly, countries)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	dir := t.TempDir()
	w, err := NewWriter(dir, "20260102_150405")
	require.NoError(t, err)
	paths, err := w.SaveImage("sales_analysis", png)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sales_analysis_latest.png"), paths[1])
}

func TestRenderSalesChart_NoData(t *testing.T) {
	_, err := RenderSalesChart(nil, []models.CountryRevenue{{Country: "France"}})
	assert.ErrorIs(t, err, ErrNoChartData)
}
