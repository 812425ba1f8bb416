package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cedra_checkout/internal/models"

	"github.com/google/uuid"
)

// Memory est un Store en mémoire (STORE_DRIVER=memory et tests).
type Memory struct {
	mu        sync.Mutex
	addresses map[string]map[string]models.Address // user → id → adresse
	coupons   map[string]models.Coupon
	usage     map[string][]models.CouponUsage // code|user
	intents   map[string]models.PaymentIntent
	orders    map[string]models.Order
	byGateway map[string]string
	addrOrder map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		addresses: make(map[string]map[string]models.Address),
		coupons:   make(map[string]models.Coupon),
		usage:     make(map[string][]models.CouponUsage),
		intents:   make(map[string]models.PaymentIntent),
		orders:    make(map[string]models.Order),
		byGateway: make(map[string]string),
		addrOrder: make(map[string][]string),
	}
}

// --- Adresses ---

func (m *Memory) ListAddresses(_ context.Context, userID string) ([]models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Address, 0, len(m.addrOrder[userID]))
	for _, id := range m.addrOrder[userID] {
		out = append(out, m.addresses[userID][id])
	}
	return out, nil
}

func (m *Memory) GetAddress(_ context.Context, userID, addressID string) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses[userID][addressID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) CreateAddress(_ context.Context, addr *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addresses[addr.UserID] == nil {
		m.addresses[addr.UserID] = make(map[string]models.Address)
	}
	if _, exists := m.addresses[addr.UserID][addr.ID]; exists {
		return ErrConflict
	}
	m.addresses[addr.UserID][addr.ID] = *addr
	m.addrOrder[addr.UserID] = append(m.addrOrder[addr.UserID], addr.ID)
	return nil
}

func (m *Memory) UpdateAddress(_ context.Context, addr *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.addresses[addr.UserID][addr.ID]; !ok {
		return ErrNotFound
	}
	m.addresses[addr.UserID][addr.ID] = *addr
	return nil
}

// --- Coupons ---

func (m *Memory) GetCoupon(_ context.Context, code string) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListCoupons(_ context.Context) ([]models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) CreateCoupon(_ context.Context, coupon *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := strings.ToUpper(coupon.Code)
	if _, exists := m.coupons[code]; exists {
		return ErrConflict
	}
	coupon.Code = code
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	m.coupons[code] = *coupon
	return nil
}

func (m *Memory) UpdateCoupon(_ context.Context, code string, upd models.CouponUpdate) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = strings.ToUpper(code)
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	upd.Apply(&c)
	m.coupons[code] = c
	return &c, nil
}

func (m *Memory) DeleteCoupon(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = strings.ToUpper(code)
	if _, ok := m.coupons[code]; !ok {
		return ErrNotFound
	}
	delete(m.coupons, code)
	return nil
}

func (m *Memory) CountUsage(_ context.Context, code, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usage[usageKey(code, userID)]), nil
}

func (m *Memory) RecordUsage(_ context.Context, usage models.CouponUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey(usage.CouponCode, usage.UserID)
	for _, u := range m.usage[key] {
		if u.OrderID == usage.OrderID {
			return nil
		}
	}
	m.usage[key] = append(m.usage[key], usage)
	code := strings.ToUpper(usage.CouponCode)
	if c, ok := m.coupons[code]; ok {
		c.UsedCount++
		m.coupons[code] = c
	}
	return nil
}

func usageKey(code, userID string) string {
	return strings.ToUpper(code) + "|" + userID
}

// --- Intents ---

func (m *Memory) SaveIntent(_ context.Context, intent models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.GatewayOrderID] = intent
	return nil
}

func (m *Memory) GetIntent(_ context.Context, gatewayOrderID string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[gatewayOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &intent, nil
}

// --- Commandes ---

func (m *Memory) InsertOrderIfAbsent(_ context.Context, order *models.Order) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.GatewayOrderID != "" {
		if id, ok := m.byGateway[order.GatewayOrderID]; ok {
			existing := m.orders[id]
			return &existing, false, nil
		}
		m.byGateway[order.GatewayOrderID] = order.ID
	}
	m.orders[order.ID] = *order
	created := *order
	return &created, true, nil
}

func (m *Memory) GetOrder(_ context.Context, userID, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *Memory) GetOrderByGatewayOrder(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byGateway[gatewayOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	o := m.orders[id]
	return &o, nil
}

// OrderCount sert aux vérifications d'idempotence.
func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
