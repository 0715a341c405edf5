package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace/internal/models"
)

func TestEffectiveProductPriceUsesSalePriceWhenOnSale(t *testing.T) {
	assert.Equal(t, 75.0, effectiveProductPrice(100, true, 75))
	assert.Equal(t, 100.0, effectiveProductPrice(100, false, 75))
}

func TestEffectiveProductPriceIgnoresInvalidSalePrice(t *testing.T) {
	for _, salePrice := range []float64{0, -5, 100, 120} {
		assert.Equal(t, 100.0, effectiveProductPrice(100, true, salePrice), "salePrice=%v", salePrice)
	}
}

func TestSnapshotPrice(t *testing.T) {
	p := models.Product{Price: 3000, SaleEnabled: true, SalePrice: 2500}
	assert.Equal(t, 2500.0, snapshotPrice(p))
}

func TestRoundAmount(t *testing.T) {
	assert.Equal(t, 0.3, roundAmount(0.1+0.2))
}
