package checkout

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cedra_checkout/internal/address"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend reproduit l'idempotence du backend : une commande par gatewayOrderId.
type fakeBackend struct {
	mu sync.Mutex

	addresses  []models.Address
	coupons    []models.Coupon
	couponsErr error
	applied    map[string]models.AppliedCoupon
	couponErr  map[string]error

	intentAmount *decimal.Decimal
	intentErr    error
	intents      int
	lastIntent   models.IntentRequest

	// verifyErr donne l'erreur du n-ième appel (à partir de 1) ; persisted indique
	// si la commande a quand même été écrite avant l'erreur.
	verifyErr   func(call int) (persisted bool, err error)
	verifyCalls int
	drafts      []models.OrderDraft
	orders      map[string]*models.Order
	codOrders   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		applied:   map[string]models.AppliedCoupon{},
		couponErr: map[string]error{},
		orders:    map[string]*models.Order{},
	}
}

func (b *fakeBackend) ListAddresses(ctx context.Context) ([]models.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Address, len(b.addresses))
	copy(out, b.addresses)
	return out, nil
}

func (b *fakeBackend) CreateAddress(ctx context.Context, draft models.Address) (*models.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	draft.ID = fmt.Sprintf("addr-%d", len(b.addresses)+1)
	b.addresses = append(b.addresses, draft)
	return &draft, nil
}

func (b *fakeBackend) UpdateAddress(ctx context.Context, id string, upd models.AddressUpdate) (*models.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.addresses {
		if b.addresses[i].ID == id {
			upd.Apply(&b.addresses[i])
			a := b.addresses[i]
			return &a, nil
		}
	}
	return nil, wrap("address", KindValidation, errors.New("not found"))
}

func (b *fakeBackend) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	return b.coupons, b.couponsErr
}

func (b *fakeBackend) ApplyCoupon(ctx context.Context, code string, total decimal.Decimal) (models.AppliedCoupon, error) {
	if err, ok := b.couponErr[code]; ok {
		return models.AppliedCoupon{}, err
	}
	if c, ok := b.applied[code]; ok {
		return c, nil
	}
	return models.AppliedCoupon{}, wrap("coupon", KindCouponInvalid, errors.New("unknown"))
}

func (b *fakeBackend) CreatePaymentIntent(ctx context.Context, req models.IntentRequest) (models.PaymentIntent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intents++
	b.lastIntent = req
	if b.intentErr != nil {
		return models.PaymentIntent{}, b.intentErr
	}
	amount := req.Amount
	if b.intentAmount != nil {
		amount = *b.intentAmount
	}
	return models.PaymentIntent{GatewayOrderID: fmt.Sprintf("order_%d", b.intents), Amount: amount, Currency: req.Currency}, nil
}

func (b *fakeBackend) VerifyPayment(ctx context.Context, proof models.PaymentProof, draft models.OrderDraft) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verifyCalls++
	b.drafts = append(b.drafts, draft)

	var failure error
	persisted := false
	if b.verifyErr != nil {
		persisted, failure = b.verifyErr(b.verifyCalls)
	}
	if failure != nil && !persisted {
		return nil, failure
	}
	order, ok := b.orders[proof.GatewayOrderID]
	if !ok {
		order = &models.Order{
			ID:               fmt.Sprintf("o-%d", len(b.orders)+1),
			BusinessOrderID:  fmt.Sprintf("ORD-20261017-%08d", len(b.orders)+1),
			Status:           models.OrderStatusPaid,
			GatewayOrderID:   proof.GatewayOrderID,
			PaymentBreakdown: draft.PaymentBreakdown,
		}
		b.orders[proof.GatewayOrderID] = order
	}
	if failure != nil {
		return nil, failure
	}
	return order, nil
}

func (b *fakeBackend) PlaceCashOnDelivery(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codOrders++
	return &models.Order{ID: "cod-1", BusinessOrderID: "ORD-20261017-C0D00001", Status: models.OrderStatusPending}, nil
}

type fakeCart struct {
	snap     models.CartSnapshot
	clearErr error
	clears   int
}

func (c *fakeCart) Snapshot(ctx context.Context) (models.CartSnapshot, error) { return c.snap, nil }

func (c *fakeCart) Clear(ctx context.Context) error {
	c.clears++
	return c.clearErr
}

type gatewayMode int

const (
	gatewaySucceed gatewayMode = iota
	gatewayFail
	gatewayAbandon
	gatewayHang
	// la preuve arrive pendant la fermeture de l'UI
	gatewaySucceedOnClose
)

type fakeGateway struct {
	mode   gatewayMode
	opened []GatewayCheckout
	closed bool
	// afterOpen s'exécute une fois l'événement livré (annulation concurrente)
	afterOpen func()
}

func (g *fakeGateway) Open(ctx context.Context, co GatewayCheckout) (*Handle, error) {
	g.opened = append(g.opened, co)
	proof := models.PaymentProof{PaymentID: "pay_1", GatewayOrderID: co.Intent.GatewayOrderID, Signature: "sig"}

	var cb *Callbacks
	handle, cb := NewHandle(func() {
		g.closed = true
		if g.mode == gatewaySucceedOnClose {
			cb.Succeed(proof)
		}
	})
	if g.afterOpen != nil {
		defer g.afterOpen()
	}
	switch g.mode {
	case gatewaySucceed:
		cb.Succeed(proof)
	case gatewayFail:
		cb.Fail("card declined")
	case gatewayAbandon:
		cb.Abandon()
	}
	return handle, nil
}

type fixture struct {
	backend *fakeBackend
	cart    *fakeCart
	gateway *fakeGateway
	journal *reconcile.Journal
	machine *Machine
}

// panier de 10000 : sans coupon le total est 10000 + 1000 + 99 = 11099
func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := newFakeBackend()
	backend.addresses = []models.Address{{ID: "addr-1", FullName: "Asha Rao", Flat: "12B", Pincode: "411001", IsDefault: true}}

	cart := &fakeCart{snap: models.NewCartSnapshot([]models.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(5000)},
	}, time.Now())}

	journal, err := reconcile.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	gw := &fakeGateway{}
	m := NewMachine(backend, cart, gw, journal, pricing.DefaultPolicy(), "INR")
	return &fixture{backend: backend, cart: cart, gateway: gw, journal: journal, machine: m}
}

func buyer() models.User {
	return models.User{ID: "user-1", Name: "Asha Rao", Email: "asha@example.com"}
}

func TestRun_OnlinePaymentCommitsAndClearsCart(t *testing.T) {
	f := newFixture(t)

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, s.State)
	require.NotNil(t, s.Order)
	assert.Equal(t, 1, f.cart.clears)
	assert.Equal(t, "addr-1", s.AddressID)
	assert.Equal(t, "11099", s.Breakdown.Total.String())
	require.Len(t, f.gateway.opened, 1)
	assert.True(t, f.gateway.opened[0].Intent.Amount.Equal(s.Breakdown.Total))
	assert.Equal(t, "asha@example.com", f.gateway.opened[0].Prefill.Email)
	assert.Equal(t, "order_1", s.Proof.GatewayOrderID)
	assert.Equal(t, s.Proof.GatewayOrderID, s.Intent.GatewayOrderID)
}

func TestRun_CouponDiscountFlowsIntoBreakdown(t *testing.T) {
	f := newFixture(t)
	f.backend.applied["SAVE10"] = models.AppliedCoupon{Code: "SAVE10", Discount: decimal.NewFromInt(1000)}

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), CouponCode: "SAVE10"})
	require.NoError(t, err)

	// 10000 - 1000 + 900 + 99
	assert.Equal(t, "9999", s.Breakdown.Total.String())
	require.Len(t, f.backend.drafts, 1)
	assert.Equal(t, "SAVE10", f.backend.drafts[0].CouponCode)
	assert.Equal(t, "1000", f.backend.drafts[0].PaymentBreakdown.Discount.String())

	// le coupon est réservé avec l'intent, sur le sous-total articles
	assert.Equal(t, "SAVE10", f.backend.lastIntent.CouponCode)
	assert.Equal(t, "10000", f.backend.lastIntent.OrderTotal.String())
	assert.Equal(t, "9999", f.backend.lastIntent.Amount.String())
}

func TestRun_CouponRejectedAtIntentFailsBeforeGateway(t *testing.T) {
	f := newFixture(t)
	f.backend.applied["SAVE10"] = models.AppliedCoupon{Code: "SAVE10", Discount: decimal.NewFromInt(1000)}
	f.backend.intentErr = wrap("create-intent", KindCouponExpired, errors.New("ce coupon a expiré"))

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), CouponCode: "SAVE10"})
	require.Error(t, err)
	assert.Equal(t, KindCouponExpired, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
	assert.True(t, s.Failure.Kind.Recoverable())
	assert.Empty(t, f.gateway.opened)
	assert.Zero(t, f.cart.clears)
}

func TestRun_RejectedCouponContinuesWithoutDiscount(t *testing.T) {
	f := newFixture(t)
	f.backend.couponErr["OLD"] = wrap("coupon", KindCouponExpired, errors.New("expired"))

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), CouponCode: "OLD"})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, s.State)
	assert.Nil(t, s.Coupon)
	require.NotNil(t, s.CouponError)
	assert.Equal(t, KindCouponExpired, s.CouponError.Kind)
	assert.True(t, s.Breakdown.Discount.IsZero())
	assert.Empty(t, f.backend.drafts[0].CouponCode)
}

func TestRun_CouponCatalogFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.backend.couponsErr = errors.New("redis down")

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, s.State)
	assert.Empty(t, s.Coupons)
}

func TestRun_PaymentFailedLeavesNoOrderAndCart(t *testing.T) {
	for name, mode := range map[string]gatewayMode{"failed": gatewayFail, "abandoned": gatewayAbandon} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.mode = mode

			s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
			require.Error(t, err)

			assert.Equal(t, StateFailed, s.State)
			assert.Nil(t, s.Order)
			assert.Nil(t, s.Proof)
			assert.Zero(t, f.backend.verifyCalls)
			assert.Zero(t, f.cart.clears)
			assert.True(t, s.Failure.Kind.Recoverable())
			assert.False(t, s.Failure.Irreversible)
			if mode == gatewayFail {
				assert.Equal(t, KindGatewayFailed, KindOf(err))
			} else {
				assert.Equal(t, KindGatewayAbandoned, KindOf(err))
			}
		})
	}
}

func TestRun_CancelWhileGatewayOpenAbandons(t *testing.T) {
	f := newFixture(t)
	f.gateway.mode = gatewayHang

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := f.machine.Run(ctx, Request{Buyer: buyer()})

	require.Error(t, err)
	assert.Equal(t, KindGatewayAbandoned, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
	assert.True(t, f.gateway.closed)
	assert.Zero(t, f.backend.verifyCalls)
}

func TestRun_ProofBeforeCancellationStillCommits(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		f.gateway.afterOpen = cancel

		s, err := f.machine.Run(ctx, Request{Buyer: buyer()})
		require.NoError(t, err)
		require.Equal(t, StateCommitted, s.State)
		require.NotNil(t, s.Proof)
		assert.Equal(t, 1, f.backend.verifyCalls)
		assert.Equal(t, 1, f.cart.clears)
		assert.False(t, f.gateway.closed)
	}
}

func TestRun_ProofBeforeCancellationThenPersistenceFailureIsJournaled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.afterOpen = cancel
	f.backend.verifyErr = func(int) (bool, error) {
		return false, wrap("verify", KindNetwork, errors.New("persistence_failed"))
	}

	s, err := f.machine.Run(ctx, Request{Buyer: buyer()})
	require.Error(t, err)
	assert.Equal(t, KindCriticalRecovery, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
	assert.Zero(t, f.cart.clears)

	entries, err := f.journal.List(false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "order_1", entries[0].GatewayOrderID)
}

func TestRun_EmptyCartFailsBeforeAnySideEffect(t *testing.T) {
	f := newFixture(t)
	f.cart.snap = models.NewCartSnapshot(nil, time.Now())

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
	assert.Zero(t, f.backend.intents)
	assert.Empty(t, f.gateway.opened)
}

func TestRun_FirstAddressBecomesDefault(t *testing.T) {
	f := newFixture(t)
	f.backend.addresses = nil

	draft := &models.Address{FullName: "Asha Rao", Flat: "12B", Pincode: "411001", Phone: "9876543210"}
	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), Address: address.Selection{Draft: draft}})
	require.NoError(t, err)

	require.Len(t, f.backend.addresses, 1)
	assert.Equal(t, f.backend.addresses[0].ID, s.AddressID)
	assert.True(t, f.backend.addresses[0].IsDefault)
}

func TestRun_InvalidAddressDraftIsValidation(t *testing.T) {
	f := newFixture(t)

	draft := &models.Address{FullName: "Asha Rao", Flat: "12B", Pincode: "41100"}
	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), Address: address.Selection{Draft: draft}})

	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
	assert.Len(t, f.backend.addresses, 1)
}

func TestRun_ProofInvalidIsTerminalWithoutJournal(t *testing.T) {
	f := newFixture(t)
	f.backend.verifyErr = func(int) (bool, error) {
		return false, wrap("verify", KindProofInvalid, errors.New("bad signature"))
	}

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.Error(t, err)

	assert.Equal(t, KindProofInvalid, KindOf(err))
	assert.True(t, s.Failure.Irreversible)
	assert.Zero(t, f.cart.clears)
	entries, jerr := f.journal.List(true)
	require.NoError(t, jerr)
	assert.Empty(t, entries)

	assert.ErrorIs(t, f.machine.RetryCommit(context.Background(), s), ErrIllegalTransition)
}

func TestRun_PersistenceFailureIsCriticalRecovery(t *testing.T) {
	f := newFixture(t)
	f.backend.verifyErr = func(call int) (bool, error) {
		if call == 1 {
			return false, wrap("verify", KindNetwork, errors.New("persistence_failed"))
		}
		return false, nil
	}

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.Error(t, err)

	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, KindCriticalRecovery, KindOf(err))
	assert.True(t, s.Failure.Irreversible)
	assert.Zero(t, f.cart.clears, "le panier doit être conservé")
	assert.Contains(t, UserMessage(err), "paiement a bien été reçu")

	entry, jerr := f.journal.Get(s.Proof.GatewayOrderID)
	require.NoError(t, jerr)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, *s.Proof, entry.Proof)
	assert.False(t, entry.Resolved())

	require.NoError(t, f.machine.RetryCommit(context.Background(), s))
	assert.Equal(t, StateCommitted, s.State)
	assert.Equal(t, 1, f.cart.clears)
	assert.Len(t, f.backend.orders, 1)
	// même brouillon aux deux appels
	require.Len(t, f.backend.drafts, 2)
	assert.Equal(t, f.backend.drafts[0], f.backend.drafts[1])

	entry, jerr = f.journal.Get(s.Proof.GatewayOrderID)
	require.NoError(t, jerr)
	assert.True(t, entry.Resolved())
	assert.Equal(t, s.Order.ID, entry.OrderID)
}

func TestRetryCommit_LostResponseCreatesNoDuplicate(t *testing.T) {
	f := newFixture(t)
	// la commande est écrite mais la réponse se perd
	f.backend.verifyErr = func(call int) (bool, error) {
		if call == 1 {
			return true, wrap("verify", KindNetwork, context.DeadlineExceeded)
		}
		return false, nil
	}

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.Error(t, err)
	require.Len(t, f.backend.orders, 1)

	require.NoError(t, f.machine.RetryCommit(context.Background(), s))
	assert.Len(t, f.backend.orders, 1)
	assert.Equal(t, f.backend.orders[s.Proof.GatewayOrderID].ID, s.Order.ID)
}

func TestRun_CartClearFailureKeepsCommitted(t *testing.T) {
	f := newFixture(t)
	f.cart.clearErr = errors.New("redis down")

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer()})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, s.State)
	assert.Equal(t, 1, f.cart.clears)
}

func TestRun_CashOnDeliverySkipsGateway(t *testing.T) {
	f := newFixture(t)

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), PaymentMethod: models.PaymentMethodCOD})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, s.State)
	assert.Equal(t, models.OrderStatusPending, s.Order.Status)
	assert.Equal(t, 1, f.backend.codOrders)
	assert.Empty(t, f.gateway.opened)
	assert.Equal(t, 1, f.cart.clears)
}

func TestRun_UnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)

	s, err := f.machine.Run(context.Background(), Request{Buyer: buyer(), PaymentMethod: "cheque"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StateFailed, s.State)
}

func TestRecovered_ReplaysSameDraft(t *testing.T) {
	draft := models.OrderDraft{
		Products:         []models.CartItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10000)}},
		ShippingAddress:  "addr-1",
		PaymentMethod:    models.PaymentMethodOnline,
		PaymentBreakdown: pricing.Compose(decimal.NewFromInt(10000), decimal.NewFromInt(1000)),
		CouponCode:       "SAVE10",
	}
	entry := reconcile.Entry{
		GatewayOrderID: "order_9",
		UserID:         "user-1",
		Proof:          models.PaymentProof{PaymentID: "pay_9", GatewayOrderID: "order_9", Signature: "sig"},
		Draft:          draft,
		Reason:         "timeout",
	}

	s := Recovered(entry)
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, KindCriticalRecovery, s.Failure.Kind)
	assert.Equal(t, draft, s.Draft())
}
