package analysis

import (
	"sort"
	"time"

	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

type customerAcc struct {
	id        string
	invoices  map[string]struct{}
	net       decimal.Decimal
	saleQty   int
	returnQty int
	lastSeen  time.Time
}

// AnalyzeCustomers builds one summary per identified customer. Rows without a
// customer are left out of the result but still count towards the dataset's
// latest invoice date, which recency is measured from.
func AnalyzeCustomers(rows []models.Transaction) []models.CustomerSummary {
	var latest time.Time
	index := make(map[string]int)
	accs := make([]*customerAcc, 0)

	for _, tx := range rows {
		if tx.InvoiceDate.After(latest) {
			latest = tx.InvoiceDate
		}
		if !tx.HasCustomer() {
			continue
		}

		id := *tx.CustomerID
		i, ok := index[id]
		if !ok {
			i = len(accs)
			index[id] = i
			accs = append(accs, &customerAcc{id: id, invoices: make(map[string]struct{})})
		}

		acc := accs[i]
		acc.invoices[tx.InvoiceNo] = struct{}{}
		acc.net = acc.net.Add(tx.NetRevenue)
		acc.saleQty += tx.SaleQty
		acc.returnQty += tx.ReturnQty
		if tx.InvoiceDate.After(acc.lastSeen) {
			acc.lastSeen = tx.InvoiceDate
		}
	}

	summaries := make([]models.CustomerSummary, 0, len(accs))
	for _, acc := range accs {
		summaries = append(summaries, summarize(acc, latest))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if cmp := a.TotalNetRevenue.Cmp(b.TotalNetRevenue); cmp != 0 {
			return cmp > 0
		}
		return a.CustomerID < b.CustomerID
	})

	return summaries
}

func summarize(acc *customerAcc, latest time.Time) models.CustomerSummary {
	purchases := len(acc.invoices)
	recency := int(latest.Sub(acc.lastSeen) / day)

	s := models.CustomerSummary{
		CustomerID:               acc.id,
		TotalPurchases:           purchases,
		TotalNetRevenue:          acc.net,
		TotalSaleQty:             acc.saleQty,
		TotalReturnQty:           acc.returnQty,
		AvgOrderValue:            acc.net.Div(decimal.NewFromInt(int64(purchases))),
		RecencyDays:              recency,
		NetQty:                   acc.saleQty - acc.returnQty,
		PurchaseFrequencyMonthly: float64(purchases) / ((float64(recency) + 1) / 30),
		CustomerValue:            models.CustomerValueNegative,
	}

	if acc.saleQty != 0 {
		rate := float64(acc.returnQty) / float64(acc.saleQty)
		s.ReturnRate = &rate
	}
	if acc.net.IsPositive() {
		s.CustomerValue = models.CustomerValuePositive
	}

	return s
}
