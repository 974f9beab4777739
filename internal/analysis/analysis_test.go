package analysis

import (
	"fmt"
	"testing"
	"time"

	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func row(customer *string, invoice, stock string, sale, ret int, price string, at time.Time) models.Transaction {
	p := decimal.RequireFromString(price)
	return models.Transaction{
		InvoiceNo:     invoice,
		StockCode:     stock,
		InvoiceDate:   at,
		CustomerID:    customer,
		UnitPrice:     p,
		PaidUnitPrice: p,
		SaleQty:       sale,
		ReturnQty:     ret,
		Revenue:       decimal.NewFromInt(int64(sale)).Mul(p),
		NetRevenue:    decimal.NewFromInt(int64(sale - ret)).Mul(p),
		TotalItems:    sale + ret,
	}
}

var base = time.Date(2011, 12, 9, 12, 0, 0, 0, time.UTC)

func TestAnalyzeProducts_SplitsAndExcludesNonProducts(t *testing.T) {
	rows := []models.Transaction{
		row(nil, "1", "BANK CHARGES", 1, 0, "1000", base),
		row(nil, "1", "A", 10, 0, "5", base),
		row(nil, "2", "B", 1, 0, "20", base),
		row(nil, "3", "C", 0, 4, "3", base),
		row(nil, "4", "D", 1, 0, "500", base),
		row(nil, "5", "E", 2, 2, "7", base),
		row(nil, "6", "F", 0, 1, "30", base),
		row(nil, "7", "A", 0, 2, "5", base),
	}

	res := AnalyzeProducts(rows, ProductOptions{})

	require.Len(t, res.TopProfitable, 2)
	assert.Equal(t, "A", res.TopProfitable[0].StockCode)
	assert.True(t, res.TopProfitable[0].NetRevenue.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "B", res.TopProfitable[1].StockCode)

	require.Len(t, res.TopLosses, 2)
	assert.Equal(t, "F", res.TopLosses[0].StockCode)
	assert.Equal(t, "C", res.TopLosses[1].StockCode)

	assert.Equal(t, 2, res.ProfitableCount)
	assert.Equal(t, 2, res.LossCount)

	for _, p := range res.TopProfitable {
		assert.NotEqual(t, "BANK CHARGES", p.StockCode)
		assert.NotEqual(t, "D", p.StockCode)
	}
}

func TestAnalyzeProducts_TopNAndStableTies(t *testing.T) {
	var rows []models.Transaction
	for i := 0; i < 15; i++ {
		rows = append(rows, row(nil, "1", fmt.Sprintf("P%02d", i), 1, 0, "10", base))
	}

	res := AnalyzeProducts(rows, ProductOptions{TopN: 10})

	require.Len(t, res.TopProfitable, 10)
	assert.Equal(t, 15, res.ProfitableCount)
	for i, p := range res.TopProfitable {
		assert.Equal(t, fmt.Sprintf("P%02d", i), p.StockCode)
	}
	assert.Empty(t, res.TopLosses)
	assert.NotNil(t, res.TopLosses)
}

func TestAnalyzeProducts_CustomExclusions(t *testing.T) {
	rows := []models.Transaction{
		row(nil, "1", "POST", 1, 0, "18", base),
		row(nil, "1", "A", 1, 0, "1", base),
	}

	res := AnalyzeProducts(rows, ProductOptions{NonProductCodes: []string{"POST"}})

	require.Len(t, res.TopProfitable, 1)
	assert.Equal(t, "A", res.TopProfitable[0].StockCode)
}

func TestAnalyzeCustomers_RecencyAndFrequency(t *testing.T) {
	c := strPtr("12346")
	rows := []models.Transaction{
		row(c, "100", "A", 5, 0, "10", base.AddDate(0, 0, -10)),
		row(c, "101", "B", 10, 0, "5", base),
	}

	got := AnalyzeCustomers(rows)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, "12346", s.CustomerID)
	assert.Equal(t, 2, s.TotalPurchases)
	assert.True(t, s.TotalNetRevenue.Equal(decimal.NewFromInt(100)))
	assert.True(t, s.AvgOrderValue.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 0, s.RecencyDays)
	assert.InDelta(t, 60.0, s.PurchaseFrequencyMonthly, 1e-9)
	require.NotNil(t, s.ReturnRate)
	assert.Equal(t, 0.0, *s.ReturnRate)
	assert.Equal(t, 15, s.NetQty)
	assert.Equal(t, models.CustomerValuePositive, s.CustomerValue)
}

func TestAnalyzeCustomers_UnknownCustomersExcludedButSetLatestDate(t *testing.T) {
	c := strPtr("17850")
	rows := []models.Transaction{
		row(c, "100", "A", 1, 0, "10", base.AddDate(0, 0, -5).Add(-time.Hour)),
		row(nil, "200", "A", 1, 0, "10", base),
	}

	got := AnalyzeCustomers(rows)
	require.Len(t, got, 1)
	assert.Equal(t, "17850", got[0].CustomerID)
	assert.Equal(t, 5, got[0].RecencyDays)
	assert.InDelta(t, 1/(6.0/30), got[0].PurchaseFrequencyMonthly, 1e-9)
}

func TestAnalyzeCustomers_ReturnsOnlyHasNilReturnRate(t *testing.T) {
	c := strPtr("13000")
	rows := []models.Transaction{
		row(c, "C1", "A", 0, 3, "4", base),
	}

	got := AnalyzeCustomers(rows)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].ReturnRate)
	assert.True(t, got[0].TotalNetRevenue.Equal(decimal.NewFromInt(-12)))
	assert.Equal(t, models.CustomerValueNegative, got[0].CustomerValue)
	assert.Equal(t, -3, got[0].NetQty)
}

func TestAnalyzeCustomers_SortedByNetRevenueThenID(t *testing.T) {
	rows := []models.Transaction{
		row(strPtr("B"), "1", "A", 1, 0, "10", base),
		row(strPtr("C"), "2", "A", 1, 0, "50", base),
		row(strPtr("A"), "3", "A", 1, 0, "10", base),
		row(strPtr("D"), "4", "A", 0, 0, "0", base),
	}

	got := AnalyzeCustomers(rows)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.CustomerID
	}
	assert.Equal(t, []string{"C", "A", "B", "D"}, ids)
	assert.Equal(t, models.CustomerValueNegative, got[3].CustomerValue)
}

func TestAnalyzeCustomers_Idempotent(t *testing.T) {
	rows := []models.Transaction{
		row(strPtr("1"), "1", "A", 3, 1, "2.5", base.AddDate(0, -1, 0)),
		row(strPtr("2"), "2", "B", 1, 0, "10", base),
		row(strPtr("1"), "3", "A", 2, 0, "2.5", base.AddDate(0, 0, -3)),
	}

	first := AnalyzeCustomers(rows)
	second := AnalyzeCustomers(rows)
	assert.Equal(t, first, second)
}

func TestAnalyzeCustomers_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCustomers(nil))
}

func TestSegment_Quartiles(t *testing.T) {
	var values []decimal.Decimal
	for i := 8; i >= 1; i-- {
		values = append(values, decimal.NewFromInt(int64(i)))
	}

	got := Segment(values)
	require.Len(t, got, 4)
	assert.Equal(t, SegmentSummary{Segment: SegmentBronze, Customers: 2, MeanMonetary: 1.5}, got[0])
	assert.Equal(t, SegmentSummary{Segment: SegmentSilver, Customers: 2, MeanMonetary: 3.5}, got[1])
	assert.Equal(t, SegmentSummary{Segment: SegmentGold, Customers: 2, MeanMonetary: 5.5}, got[2])
	assert.Equal(t, SegmentSummary{Segment: SegmentPlatinum, Customers: 2, MeanMonetary: 7.5}, got[3])
}

func TestSegment_EqualValuesShareSegment(t *testing.T) {
	values := []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(5), decimal.NewFromInt(5)}

	got := Segment(values)
	require.Len(t, got, 1)
	assert.Equal(t, SegmentBronze, got[0].Segment)
	assert.Equal(t, 3, got[0].Customers)
}

func TestSegment_Empty(t *testing.T) {
	assert.Empty(t, Segment(nil))
}
