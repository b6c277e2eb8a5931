package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMergeLines(t *testing.T) {
	merged := MergeLines([]LineItem{
		{ProductID: "milk", Quantity: 1},
		{ProductID: "bread", Quantity: 2},
		{ProductID: "milk", Quantity: 3},
	})

	assert.Equal(t, []LineItem{
		{ProductID: "milk", Quantity: 4},
		{ProductID: "bread", Quantity: 2},
	}, merged)
}

func TestOrderLine_Extension(t *testing.T) {
	line := OrderLine{ProductID: "p", Quantity: 3, Price: decimal.RequireFromString("19.99")}
	assert.True(t, decimal.RequireFromString("59.97").Equal(line.Extension()))
}

func TestCart_LineItems(t *testing.T) {
	cart := Cart{Items: []CartItem{
		{ProductID: "a", Quantity: 2, Price: decimal.NewFromInt(10)},
		{ProductID: "b", Quantity: 1, Price: decimal.NewFromInt(5)},
	}}
	assert.Equal(t, []LineItem{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 1}}, cart.LineItems())
}

func TestAddress_IsZero(t *testing.T) {
	assert.True(t, Address{}.IsZero())
	assert.True(t, Address{Street: "  ", Phone: "123"}.IsZero())
	assert.False(t, Address{Street: "12 MG Road", City: "Bengaluru"}.IsZero())
}
