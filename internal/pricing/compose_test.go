package pricing

import (
	"testing"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCompose_Example(t *testing.T) {
	b := Compose(d("10000"), d("1000"))

	assert.Equal(t, "900", b.Tax.String())
	assert.Equal(t, "99", b.Shipping.String())
	assert.Equal(t, "9999", b.Total.String())
}

func TestCompose_EmptyCartHasNoShipping(t *testing.T) {
	b := Compose(decimal.Zero, decimal.Zero)

	assert.True(t, b.Shipping.IsZero())
	assert.True(t, b.Tax.IsZero())
	assert.True(t, b.Total.IsZero())
}

func TestCompose_TotalIdentity(t *testing.T) {
	cases := []struct{ items, discount string }{
		{"0.5", "0"},
		{"149.99", "15"},
		{"2345.55", "234.55"},
		{"5", "5"},
		{"1", "0"},
		{"100000", "12345.67"},
	}
	for _, tc := range cases {
		b := Compose(d(tc.items), d(tc.discount))
		want := b.ItemsTotal.Sub(b.Discount).Add(b.Tax).Add(b.Shipping)
		assert.True(t, want.Equal(b.Total), "items=%s discount=%s", tc.items, tc.discount)
		assert.True(t, b.Tax.Equal(b.Tax.Round(0)), "tax must be whole: %s", b.Tax)
	}
}

func TestCompose_IsDeterministic(t *testing.T) {
	first := Compose(d("2345.55"), d("234.55"))
	for i := 0; i < 10; i++ {
		assert.True(t, Equal(first, Compose(d("2345.55"), d("234.55"))))
	}
}

func TestCompose_RoundsHalfUp(t *testing.T) {
	// 10% de 1005 = 100.5 → 101
	b := Compose(d("1005"), decimal.Zero)
	assert.Equal(t, "101", b.Tax.String())
}

func TestCompose_ClampsDiscount(t *testing.T) {
	b := Compose(d("500"), d("800"))
	assert.Equal(t, "500", b.Discount.String())
	assert.True(t, b.Tax.IsZero())
	assert.Equal(t, "99", b.Total.String())

	b = Compose(d("500"), d("-20"))
	assert.True(t, b.Discount.IsZero())
}

func TestPolicy_Custom(t *testing.T) {
	p := Policy{TaxRate: d("0.18"), ShippingFee: d("49")}
	b := p.Compose(d("1000"), decimal.Zero)

	assert.Equal(t, "180", b.Tax.String())
	assert.Equal(t, "1229", b.Total.String())
}

func TestVerify(t *testing.T) {
	items := []models.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: d("5000")},
	}
	claimed := Compose(d("10000"), d("1000"))

	got, err := DefaultPolicy().Verify(items, claimed)
	require.NoError(t, err)
	assert.True(t, Equal(claimed, got))

	tampered := claimed
	tampered.Total = d("1")
	_, err = DefaultPolicy().Verify(items, tampered)
	assert.ErrorIs(t, err, ErrBreakdownMismatch)
}
