package analysis

import (
	"sort"

	"retail-analytics/internal/models"
)

// DefaultNonProductCodes are stock codes for services and accounting
// adjustments rather than merchandise
var DefaultNonProductCodes = []string{"S", "D", "BANK CHARGES", "CRUK", "M", "AMAZONFEE"}

// DefaultTopN is the length of the profitable and loss lists
const DefaultTopN = 10

// ProductOptions tunes AnalyzeProducts
type ProductOptions struct {
	NonProductCodes []string
	TopN            int
}

// ProductAnalysis holds the top profitable and loss-making products
type ProductAnalysis struct {
	TopProfitable   []models.ProductRevenue `json:"top_profitable"`
	TopLosses       []models.ProductRevenue `json:"top_losses"`
	ProfitableCount int                     `json:"profitable_count"`
	LossCount       int                     `json:"loss_count"`
}

// AnalyzeProducts sums net revenue per stock code and splits merchandise into
// profitable and loss-making lists. Products with zero net revenue are in
// neither. Ties keep first-encountered stock code order.
func AnalyzeProducts(rows []models.Transaction, opts ProductOptions) ProductAnalysis {
	codes := opts.NonProductCodes
	if codes == nil {
		codes = DefaultNonProductCodes
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	excluded := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		excluded[c] = struct{}{}
	}

	index := make(map[string]int)
	totals := make([]models.ProductRevenue, 0)
	for _, tx := range rows {
		if _, skip := excluded[tx.StockCode]; skip {
			continue
		}
		i, ok := index[tx.StockCode]
		if !ok {
			i = len(totals)
			index[tx.StockCode] = i
			totals = append(totals, models.ProductRevenue{StockCode: tx.StockCode})
		}
		totals[i].NetRevenue = totals[i].NetRevenue.Add(tx.NetRevenue)
	}

	var profitable, losses []models.ProductRevenue
	for _, p := range totals {
		switch p.NetRevenue.Sign() {
		case 1:
			profitable = append(profitable, p)
		case -1:
			losses = append(losses, p)
		}
	}

	sort.SliceStable(profitable, func(i, j int) bool {
		return profitable[i].NetRevenue.GreaterThan(profitable[j].NetRevenue)
	})
	sort.SliceStable(losses, func(i, j int) bool {
		return losses[i].NetRevenue.LessThan(losses[j].NetRevenue)
	})

	return ProductAnalysis{
		TopProfitable:   head(profitable, topN),
		TopLosses:       head(losses, topN),
		ProfitableCount: len(profitable),
		LossCount:       len(losses),
	}
}

func head(list []models.ProductRevenue, n int) []models.ProductRevenue {
	if len(list) > n {
		list = list[:n]
	}
	if list == nil {
		return []models.ProductRevenue{}
	}
	return list
}

