package orders

import (
	"math"

	"marketplace/internal/models"
)

func isProductOnSale(price float64, saleEnabled bool, salePrice float64) bool {
	return saleEnabled && salePrice > 0 && salePrice < price
}

func effectiveProductPrice(price float64, saleEnabled bool, salePrice float64) float64 {
	if isProductOnSale(price, saleEnabled, salePrice) {
		return salePrice
	}
	return price
}

// snapshotPrice is the unit price frozen into an order line.
func snapshotPrice(p models.Product) float64 {
	return effectiveProductPrice(p.Price, p.SaleEnabled, p.SalePrice)
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
