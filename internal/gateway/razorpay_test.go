package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpay_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 999900, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_abc", "amount": 999900, "currency": "INR", "status": "created",
		})
	}))
	defer srv.Close()

	rzp := NewRazorpay("rzp_test", "secret", srv.URL, srv.Client())
	intent, err := rzp.CreateOrder(context.Background(), decimal.NewFromInt(9999), "INR", "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", intent.GatewayOrderID)
	assert.True(t, intent.Amount.Equal(decimal.NewFromInt(9999)))
	assert.Equal(t, "razorpay", intent.Provider)
}

func TestRazorpay_CreateOrderFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	rzp := NewRazorpay("k", "s", srv.URL, srv.Client())
	_, err := rzp.CreateOrder(context.Background(), decimal.NewFromInt(10), "INR", "r")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestRazorpay_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rzp := NewRazorpay("k", "s", srv.URL, srv.Client())
	for i := 0; i < 8; i++ {
		_, err := rzp.CreateOrder(context.Background(), decimal.NewFromInt(10), "INR", "r")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestRazorpay_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	rzp := NewRazorpay("k", "s", srv.URL, srv.Client())
	for i := 0; i < 8; i++ {
		_, err := rzp.CreateOrder(context.Background(), decimal.NewFromInt(10), "INR", "r")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(&hits))
}

func TestRazorpay_Verify(t *testing.T) {
	rzp := NewRazorpay("k", "secret", "http://unused", nil)
	intent := models.PaymentIntent{GatewayOrderID: "order_abc", Amount: decimal.NewFromInt(9999)}
	good := models.PaymentProof{
		PaymentID:      "pay_1",
		GatewayOrderID: "order_abc",
		Signature:      Sign("secret", "order_abc", "pay_1"),
	}
	ctx := context.Background()

	assert.NoError(t, rzp.Verify(ctx, good, intent))

	tampered := good
	tampered.PaymentID = "pay_2"
	assert.ErrorIs(t, rzp.Verify(ctx, tampered, intent), ErrProofInvalid)

	otherOrder := good
	otherOrder.GatewayOrderID = "order_other"
	assert.ErrorIs(t, rzp.Verify(ctx, otherOrder, intent), ErrProofInvalid)

	wrongKey := good
	wrongKey.Signature = Sign("not-the-secret", "order_abc", "pay_1")
	assert.ErrorIs(t, rzp.Verify(ctx, wrongKey, intent), ErrProofInvalid)

	empty := good
	empty.Signature = ""
	assert.ErrorIs(t, rzp.Verify(ctx, empty, intent), ErrProofInvalid)
}

func TestSign_IsHexAndOrderSensitive(t *testing.T) {
	sig := Sign("secret", "order_abc", "pay_1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", "order_abc", "pay_1"))
	assert.NotEqual(t, sig, Sign("secret", "pay_1", "order_abc"))
}
