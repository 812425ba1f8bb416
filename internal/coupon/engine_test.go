package coupon

import (
	"context"
	"testing"
	"time"

	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seed(t *testing.T, s *store.Memory, coupons ...models.Coupon) {
	t.Helper()
	for _, c := range coupons {
		c := c
		require.NoError(t, s.CreateCoupon(context.Background(), &c))
	}
}

func newEngine(t *testing.T, coupons ...models.Coupon) (*Engine, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	seed(t, s, coupons...)
	return NewEngine(s, nil, d("99")).WithClock(func() time.Time { return now }), s
}

func active(code, typ, value string) models.Coupon {
	return models.Coupon{
		Code:      code,
		Type:      typ,
		Value:     d(value),
		IsActive:  true,
		StartsAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestValidate_Percentage(t *testing.T) {
	e, _ := newEngine(t, active("SAVE10", models.CouponPercentage, "10"))

	got, err := e.Validate(context.Background(), " save10 ", d("10000"), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", got.Code)
	assert.True(t, got.Discount.Equal(d("1000")), got.Discount.String())
}

func TestValidate_PercentageCappedByMaxAmount(t *testing.T) {
	c := active("SAVE50", models.CouponPercentage, "50")
	limit := d("500")
	c.MaxAmount = &limit
	e, _ := newEngine(t, c)

	got, err := e.Validate(context.Background(), "SAVE50", d("10000"), "user-1")
	require.NoError(t, err)
	assert.True(t, got.Discount.Equal(d("500")))
}

func TestValidate_FixedCappedAtSubtotal(t *testing.T) {
	e, _ := newEngine(t, active("FLAT300", models.CouponFixed, "300"))

	got, err := e.Validate(context.Background(), "FLAT300", d("250"), "user-1")
	require.NoError(t, err)
	assert.True(t, got.Discount.Equal(d("250")))
}

func TestValidate_FreeShippingEqualsShippingFee(t *testing.T) {
	e, _ := newEngine(t, active("SHIPFREE", models.CouponFreeShipping, "0"))

	got, err := e.Validate(context.Background(), "SHIPFREE", d("1000"), "user-1")
	require.NoError(t, err)
	assert.True(t, got.Discount.Equal(d("99")))
}

func TestValidate_RoundsToTwoDecimals(t *testing.T) {
	e, _ := newEngine(t, active("ODD", models.CouponPercentage, "7"))

	got, err := e.Validate(context.Background(), "ODD", d("123.45"), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "8.64", got.Discount.StringFixed(2))
}

func TestValidate_Rejections(t *testing.T) {
	inactive := active("OFF", models.CouponFixed, "10")
	inactive.IsActive = false
	future := active("SOON", models.CouponFixed, "10")
	future.StartsAt = now.Add(time.Hour)
	expired := active("OLD", models.CouponFixed, "10")
	expired.ExpiresAt = now.Add(-time.Minute)
	exhausted := active("GONE", models.CouponFixed, "10")
	exhausted.MaxUses = 5
	exhausted.UsedCount = 5
	minimum := active("BIG", models.CouponFixed, "10")
	minimum.MinAmount = d("2000")

	e, _ := newEngine(t, inactive, future, expired, exhausted, minimum)
	ctx := context.Background()

	cases := map[string]error{
		"":     ErrInvalidCoupon,
		"NOPE": ErrInvalidCoupon,
		"OFF":  ErrInvalidCoupon,
		"SOON": ErrInvalidCoupon,
		"OLD":  ErrExpiredCoupon,
		"GONE": ErrInvalidCoupon,
		"BIG":  ErrInvalidCoupon,
	}
	for code, want := range cases {
		_, err := e.Validate(ctx, code, d("1000"), "user-1")
		assert.ErrorIs(t, err, want, "code %q", code)
	}

	var rej *Rejection
	_, err := e.Validate(ctx, "BIG", d("1000"), "user-1")
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "2000.00")
}

func TestValidate_PerUserLimit(t *testing.T) {
	c := active("ONCE", models.CouponFixed, "50")
	c.MaxUsesPerUser = 1
	e, s := newEngine(t, c)
	ctx := context.Background()

	_, err := e.Validate(ctx, "ONCE", d("1000"), "user-1")
	require.NoError(t, err)

	require.NoError(t, s.RecordUsage(ctx, models.CouponUsage{CouponCode: "ONCE", UserID: "user-1", OrderID: "o1", UsedAt: now}))

	_, err = e.Validate(ctx, "ONCE", d("1000"), "user-1")
	assert.ErrorIs(t, err, ErrInvalidCoupon)

	_, err = e.Validate(ctx, "ONCE", d("1000"), "user-2")
	assert.NoError(t, err)
}

func TestValidate_DoesNotMutate(t *testing.T) {
	e, s := newEngine(t, active("SAVE10", models.CouponPercentage, "10"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.Validate(ctx, "SAVE10", d("1000"), "user-1")
		require.NoError(t, err)
	}
	c, err := s.GetCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
	n, _ := s.CountUsage(ctx, "SAVE10", "user-1")
	assert.Zero(t, n)
}

func TestPublicCatalog_FiltersAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hidden := active("STAFF", models.CouponFixed, "100")
	hidden.Visibility = models.CouponHidden
	expired := active("OLD", models.CouponFixed, "10")
	expired.ExpiresAt = now.Add(-time.Hour)

	s := store.NewMemory()
	seed(t, s, active("SAVE10", models.CouponPercentage, "10"), hidden, expired)
	e := NewEngine(s, cache.NewCouponCatalog(client, 5*time.Minute), d("99")).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	got, err := e.PublicCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SAVE10", got[0].Code)
	assert.True(t, mr.Exists("coupons:public"))

	// servi depuis le cache : un coupon ajouté directement au store n'apparaît pas
	seed(t, s, active("NEW", models.CouponFixed, "5"))
	got, err = e.PublicCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// la création via le moteur invalide le cache
	_, err = e.Create(ctx, active("FRESH", models.CouponFixed, "5"))
	require.NoError(t, err)
	got, err = e.PublicCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCreate_Validation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, active("X", models.CouponPercentage, "150"))
	assert.ErrorIs(t, err, ErrInvalidCoupon)
	_, err = e.Create(ctx, active("Y", "bogus", "1"))
	assert.ErrorIs(t, err, ErrInvalidCoupon)

	created, err := e.Create(ctx, active("welcome", models.CouponFixed, "50"))
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", created.Code)
	assert.Equal(t, models.CouponPublic, created.Visibility)

	_, err = e.Create(ctx, active("WELCOME", models.CouponFixed, "50"))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	catalog := cache.NewCouponCatalog(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	s := store.NewMemory()
	seed(t, s, active("SAVE10", models.CouponPercentage, "10"), active("FLAT50", models.CouponFixed, "50"))
	e := NewEngine(s, catalog, d("99")).WithClock(func() time.Time { return now })
	ctx := context.Background()

	live, err := e.PublicCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)

	off := false
	updated, err := e.Update(ctx, "save10", models.CouponUpdate{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	// le cache a été invalidé : le coupon désactivé disparaît tout de suite
	live, err = e.PublicCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "FLAT50", live[0].Code)

	_, err = e.Validate(ctx, "SAVE10", d("1000"), "user-1")
	assert.ErrorIs(t, err, ErrInvalidCoupon)

	_, err = e.Update(ctx, "SAVE10", models.CouponUpdate{})
	assert.ErrorIs(t, err, ErrInvalidCoupon)
	bogus := "secret"
	_, err = e.Update(ctx, "SAVE10", models.CouponUpdate{Visibility: &bogus})
	assert.ErrorIs(t, err, ErrInvalidCoupon)
	_, err = e.Update(ctx, "NOPE", models.CouponUpdate{IsActive: &off})
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := e.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, e.Delete(ctx, "flat50"))
	assert.ErrorIs(t, e.Delete(ctx, "FLAT50"), store.ErrNotFound)
	live, err = e.PublicCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}
