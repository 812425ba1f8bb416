package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCartSnapshot_Subtotal(t *testing.T) {
	snap := NewCartSnapshot([]CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(1000), DiscountPercent: decimal.NewFromInt(10)},
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(8200)},
	}, time.Now())

	// 2·1000·0.9 + 8200
	assert.Equal(t, "10000", snap.Subtotal().String())
}

func TestCartSnapshot_IsImmutable(t *testing.T) {
	items := []CartItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(500)}}
	snap := NewCartSnapshot(items, time.Now())

	items[0].Quantity = 10
	lines := snap.Lines()
	lines[0].Quantity = 42

	assert.Equal(t, 1, snap.Items[0].Quantity)
	assert.Equal(t, "500", snap.Subtotal().String())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(999900), MinorUnits(decimal.NewFromInt(9999)))
	assert.Equal(t, int64(1050), MinorUnits(decimal.RequireFromString("10.499")))
	assert.True(t, FromMinorUnits(999900).Equal(decimal.NewFromInt(9999)))
}

func TestAddressUpdate_Apply(t *testing.T) {
	a := Address{FullName: "Asha Rao", City: "Pune"}
	city := "Mumbai"
	def := true
	AddressUpdate{City: &city, IsDefault: &def}.Apply(&a)

	assert.Equal(t, "Asha Rao", a.FullName)
	assert.Equal(t, "Mumbai", a.City)
	assert.True(t, a.IsDefault)
	assert.False(t, AddressUpdate{City: &city, IsDefault: &def}.OnlyDefaultFlag())
	assert.True(t, AddressUpdate{IsDefault: &def}.OnlyDefaultFlag())
}
