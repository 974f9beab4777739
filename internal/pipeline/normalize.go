package pipeline

import (
	"retail-analytics/internal/models"

	"github.com/shopspring/decimal"
)

// NormalizeStats counts what the normalizer did
type NormalizeStats struct {
	NegativePriceRows int
	FreeItems         int
	ReturnRows        int
}

// Normalize splits signed quantities into sale and return quantities, drops
// negative-price rows and derives the paid price and free-item flag
func Normalize(rows []models.Transaction) ([]models.Transaction, NormalizeStats) {
	var stats NormalizeStats
	out := make([]models.Transaction, 0, len(rows))

	for _, tx := range rows {
		if tx.UnitPrice.IsNegative() {
			stats.NegativePriceRows++
			continue
		}

		switch {
		case tx.Quantity > 0:
			tx.SaleQty, tx.ReturnQty = tx.Quantity, 0
		case tx.Quantity < 0:
			tx.SaleQty, tx.ReturnQty = 0, -tx.Quantity
			stats.ReturnRows++
		default:
			tx.SaleQty, tx.ReturnQty = 0, 0
		}

		tx.IsFreeItem = tx.UnitPrice.IsZero()
		if tx.IsFreeItem {
			tx.PaidUnitPrice = decimal.Zero
			stats.FreeItems++
		} else {
			tx.PaidUnitPrice = tx.UnitPrice
		}

		out = append(out, tx)
	}

	return out, stats
}
