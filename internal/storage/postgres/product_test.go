package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront/internal/domain/product"
)

func TestStockArgs(t *testing.T) {
	ids, qtys := stockArgs([]product.StockChange{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1<<32 + 1},
	})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []int64{2, 1<<32 + 1}, qtys)
}
