package pipeline

import (
	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
)

// CalculateRevenue derives revenue, net revenue and total items for each row.
// Net revenue is negative when a row only carries returns.
func CalculateRevenue(rows []models.Transaction) []models.Transaction {
	for i := range rows {
		tx := &rows[i]
		price := tx.PaidUnitPrice
		tx.Revenue = decimal.NewFromInt(int64(tx.SaleQty)).Mul(price)
		tx.NetRevenue = decimal.NewFromInt(int64(tx.SaleQty - tx.ReturnQty)).Mul(price)
		tx.TotalItems = tx.SaleQty + tx.ReturnQty
	}
	return rows
}

// Totals sums gross and net revenue over the row set
func Totals(rows []models.Transaction) (gross, net decimal.Decimal) {
	for _, tx := range rows {
		gross = gross.Add(tx.Revenue)
		net = net.Add(tx.NetRevenue)
	}
	return gross, net
}
