package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"cedra_checkout/internal/models"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"
	"gopkg.in/inf.v0"
)

// Scylla implémente Store sur deux keyspaces : users (adresses) et orders (le reste).
type Scylla struct {
	users  *gocql.Session
	orders *gocql.Session
}

func NewScylla(users, orders *gocql.Session) *Scylla {
	return &Scylla{users: users, orders: orders}
}

// =============================================
// ADRESSES
// =============================================

const addressColumns = `address_id, user_id, full_name, phone, flat, area, landmark, pincode, city, state, is_default, created_at, updated_at`

func (s *Scylla) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	iter := s.users.Query(`SELECT `+addressColumns+` FROM addresses WHERE user_id = ?`, userID).
		WithContext(ctx).Iter()

	var results []models.Address
	for {
		a, ok := scanAddress(iter)
		if !ok {
			break
		}
		results = append(results, a)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture adresses: %w", err)
	}
	return results, nil
}

func (s *Scylla) GetAddress(ctx context.Context, userID, addressID string) (*models.Address, error) {
	id, err := gocql.ParseUUID(addressID)
	if err != nil {
		return nil, ErrNotFound
	}

	iter := s.users.Query(`SELECT `+addressColumns+` FROM addresses WHERE user_id = ? AND address_id = ?`, userID, id).
		WithContext(ctx).Iter()
	a, ok := scanAddress(iter)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture adresse: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func scanAddress(iter *gocql.Iter) (models.Address, bool) {
	var (
		a         models.Address
		addressID gocql.UUID
	)
	ok := iter.Scan(&addressID, &a.UserID, &a.FullName, &a.Phone, &a.Flat, &a.Area, &a.Landmark,
		&a.Pincode, &a.City, &a.State, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	a.ID = addressID.String()
	return a, ok
}

func (s *Scylla) CreateAddress(ctx context.Context, addr *models.Address) error {
	id, err := gocql.ParseUUID(addr.ID)
	if err != nil {
		return fmt.Errorf("id adresse invalide: %w", err)
	}
	return s.users.Query(`INSERT INTO addresses (`+addressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, addr.UserID, addr.FullName, addr.Phone, addr.Flat, addr.Area, addr.Landmark,
		addr.Pincode, addr.City, addr.State, addr.IsDefault, addr.CreatedAt, addr.UpdatedAt).
		WithContext(ctx).Exec()
}

func (s *Scylla) UpdateAddress(ctx context.Context, addr *models.Address) error {
	id, err := gocql.ParseUUID(addr.ID)
	if err != nil {
		return ErrNotFound
	}
	// UPDATE ... IF EXISTS : pas de création implicite d'une ligne fantôme.
	applied, err := s.users.Query(`UPDATE addresses SET full_name = ?, phone = ?, flat = ?, area = ?, landmark = ?,
		pincode = ?, city = ?, state = ?, is_default = ?, updated_at = ? WHERE user_id = ? AND address_id = ? IF EXISTS`,
		addr.FullName, addr.Phone, addr.Flat, addr.Area, addr.Landmark, addr.Pincode, addr.City, addr.State,
		addr.IsDefault, addr.UpdatedAt, addr.UserID, id).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("mise à jour adresse: %w", err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

// =============================================
// COUPONS
// =============================================

const couponColumns = `code, id, description, type, value, min_amount, max_amount, max_uses, used_count,
	max_uses_per_user, visibility, expires_at, starts_at, is_active, created_at`

func (s *Scylla) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	iter := s.orders.Query(`SELECT `+couponColumns+` FROM coupons WHERE code = ?`, strings.ToUpper(code)).
		WithContext(ctx).Iter()
	c, ok := scanCoupon(iter)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture coupon: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *Scylla) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	iter := s.orders.Query(`SELECT ` + couponColumns + ` FROM coupons`).WithContext(ctx).Iter()

	var coupons []models.Coupon
	for {
		c, ok := scanCoupon(iter)
		if !ok {
			break
		}
		coupons = append(coupons, c)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(iter *gocql.Iter) (models.Coupon, bool) {
	var (
		c                           models.Coupon
		id                          gocql.UUID
		value, minAmount, maxAmount *inf.Dec
	)
	ok := iter.Scan(&c.Code, &id, &c.Description, &c.Type, &value, &minAmount, &maxAmount, &c.MaxUses,
		&c.UsedCount, &c.MaxUsesPerUser, &c.Visibility, &c.ExpiresAt, &c.StartsAt, &c.IsActive, &c.CreatedAt)
	if !ok {
		return c, false
	}
	c.ID = id.String()
	c.Value = fromDec(value)
	c.MinAmount = fromDec(minAmount)
	if maxAmount != nil {
		m := fromDec(maxAmount)
		c.MaxAmount = &m
	}
	return c, true
}

func (s *Scylla) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	id := gocql.TimeUUID()
	var maxAmount *inf.Dec
	if coupon.MaxAmount != nil {
		maxAmount = toDec(*coupon.MaxAmount)
	}

	applied, err := s.orders.Query(`INSERT INTO coupons (`+couponColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		strings.ToUpper(coupon.Code), id, coupon.Description, coupon.Type, toDec(coupon.Value),
		toDec(coupon.MinAmount), maxAmount, coupon.MaxUses, coupon.UsedCount, coupon.MaxUsesPerUser,
		coupon.Visibility, coupon.ExpiresAt, coupon.StartsAt, coupon.IsActive, coupon.CreatedAt).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("création coupon: %w", err)
	}
	if !applied {
		return ErrConflict
	}
	coupon.ID = id.String()
	return nil
}

func (s *Scylla) UpdateCoupon(ctx context.Context, code string, upd models.CouponUpdate) (*models.Coupon, error) {
	code = strings.ToUpper(code)
	updates := []string{}
	values := []interface{}{}

	if upd.IsActive != nil {
		updates = append(updates, "is_active = ?")
		values = append(values, *upd.IsActive)
	}
	if upd.MaxUses != nil {
		updates = append(updates, "max_uses = ?")
		values = append(values, *upd.MaxUses)
	}
	if upd.ExpiresAt != nil {
		updates = append(updates, "expires_at = ?")
		values = append(values, *upd.ExpiresAt)
	}
	if upd.Visibility != nil {
		updates = append(updates, "visibility = ?")
		values = append(values, *upd.Visibility)
	}
	if len(updates) > 0 {
		values = append(values, code)
		query := fmt.Sprintf("UPDATE coupons SET %s WHERE code = ? IF EXISTS", strings.Join(updates, ", "))
		applied, err := s.orders.Query(query, values...).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return nil, fmt.Errorf("mise à jour coupon: %w", err)
		}
		if !applied {
			return nil, ErrNotFound
		}
	}
	return s.GetCoupon(ctx, code)
}

func (s *Scylla) DeleteCoupon(ctx context.Context, code string) error {
	applied, err := s.orders.Query(`DELETE FROM coupons WHERE code = ? IF EXISTS`, strings.ToUpper(code)).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("suppression coupon: %w", err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func (s *Scylla) CountUsage(ctx context.Context, code, userID string) (int, error) {
	var count int
	err := s.orders.Query(`SELECT COUNT(*) FROM coupon_usage WHERE code = ? AND user_id = ?`,
		strings.ToUpper(code), userID).WithContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("comptage usage coupon: %w", err)
	}
	return count, nil
}

func (s *Scylla) RecordUsage(ctx context.Context, usage models.CouponUsage) error {
	orderID, err := gocql.ParseUUID(usage.OrderID)
	if err != nil {
		return fmt.Errorf("id commande invalide: %w", err)
	}
	code := strings.ToUpper(usage.CouponCode)

	applied, err := s.orders.Query(`INSERT INTO coupon_usage (code, user_id, order_id, used_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		code, usage.UserID, orderID, usage.UsedAt).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("enregistrement usage coupon: %w", err)
	}
	if !applied {
		return nil
	}

	// used_count n'est pas un compteur CQL : lecture puis écriture conditionnelle.
	for attempt := 0; attempt < 5; attempt++ {
		var used int
		if err := s.orders.Query(`SELECT used_count FROM coupons WHERE code = ?`, code).WithContext(ctx).Scan(&used); err != nil {
			if errors.Is(err, gocql.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lecture used_count: %w", err)
		}
		ok, err := s.orders.Query(`UPDATE coupons SET used_count = ? WHERE code = ? IF used_count = ?`,
			used+1, code, used).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return fmt.Errorf("incrément used_count: %w", err)
		}
		if ok {
			return nil
		}
	}
	log.Printf("⚠️ used_count du coupon %s non incrémenté après 5 essais", code)
	return nil
}

// =============================================
// INTENTS DE PAIEMENT
// =============================================

func (s *Scylla) SaveIntent(ctx context.Context, intent models.PaymentIntent) error {
	return s.orders.Query(`INSERT INTO payment_intents (gateway_order_id, user_id, provider, amount, currency, created_at,
		coupon_code, coupon_discount, items_total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.GatewayOrderID, intent.UserID, intent.Provider, toDec(intent.Amount), intent.Currency, intent.CreatedAt,
		intent.CouponCode, toDec(intent.CouponDiscount), toDec(intent.ItemsTotal)).
		WithContext(ctx).Exec()
}

func (s *Scylla) GetIntent(ctx context.Context, gatewayOrderID string) (*models.PaymentIntent, error) {
	var (
		intent                             = models.PaymentIntent{GatewayOrderID: gatewayOrderID}
		amount, couponDiscount, itemsTotal *inf.Dec
	)
	err := s.orders.Query(`SELECT user_id, provider, amount, currency, created_at, coupon_code, coupon_discount, items_total
		FROM payment_intents WHERE gateway_order_id = ?`, gatewayOrderID).WithContext(ctx).
		Scan(&intent.UserID, &intent.Provider, &amount, &intent.Currency, &intent.CreatedAt,
			&intent.CouponCode, &couponDiscount, &itemsTotal)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lecture intent: %w", err)
	}
	intent.Amount = fromDec(amount)
	intent.CouponDiscount = fromDec(couponDiscount)
	intent.ItemsTotal = fromDec(itemsTotal)
	return &intent, nil
}

// =============================================
// COMMANDES
// =============================================

const orderColumns = `order_id, business_order_id, user_id, products, address, payment_method, items_total, discount,
	tax, shipping, total, coupon_code, status, gateway_order_id, payment_id, created_at`

// InsertOrderIfAbsent réserve la clé gateway_order_id par LWT avant d'écrire la commande.
// Si la réservation existe mais que la ligne commande manque (crash entre les deux écritures),
// la commande est réécrite avec l'id réservé : une relance ne crée jamais de doublon.
func (s *Scylla) InsertOrderIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order.GatewayOrderID == "" {
		if err := s.writeOrder(ctx, order); err != nil {
			return nil, false, err
		}
		return order, true, nil
	}

	id, err := gocql.ParseUUID(order.ID)
	if err != nil {
		return nil, false, fmt.Errorf("id commande invalide: %w", err)
	}

	existing := map[string]interface{}{}
	applied, err := s.orders.Query(`INSERT INTO orders_by_gateway_order (gateway_order_id, order_id) VALUES (?, ?) IF NOT EXISTS`,
		order.GatewayOrderID, id).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return nil, false, fmt.Errorf("réservation gateway_order_id: %w", err)
	}

	if applied {
		if err := s.writeOrder(ctx, order); err != nil {
			return nil, false, err
		}
		return order, true, nil
	}

	reservedID, _ := existing["order_id"].(gocql.UUID)
	found, err := s.getOrderByID(ctx, reservedID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("⚠️ Réservation %s sans commande: réécriture avec l'id %s", order.GatewayOrderID, reservedID)
		recovered := *order
		recovered.ID = reservedID.String()
		if err := s.writeOrder(ctx, &recovered); err != nil {
			return nil, false, err
		}
		return &recovered, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return found, false, nil
}

func (s *Scylla) writeOrder(ctx context.Context, order *models.Order) error {
	id, err := gocql.ParseUUID(order.ID)
	if err != nil {
		return fmt.Errorf("id commande invalide: %w", err)
	}
	products, err := json.Marshal(order.Products)
	if err != nil {
		return fmt.Errorf("sérialisation produits: %w", err)
	}
	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("sérialisation adresse: %w", err)
	}

	b := order.PaymentBreakdown
	err = s.orders.Query(`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, order.BusinessOrderID, order.UserID, string(products), string(address), order.PaymentMethod,
		toDec(b.ItemsTotal), toDec(b.Discount), toDec(b.Tax), toDec(b.Shipping), toDec(b.Total),
		order.CouponCode, order.Status, order.GatewayOrderID, order.PaymentID, order.CreatedAt).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insertion commande: %w", err)
	}
	return nil
}

func (s *Scylla) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	id, err := gocql.ParseUUID(orderID)
	if err != nil {
		return nil, ErrNotFound
	}
	o, err := s.getOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Scylla) GetOrderByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var id gocql.UUID
	err := s.orders.Query(`SELECT order_id FROM orders_by_gateway_order WHERE gateway_order_id = ?`, gatewayOrderID).
		WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lecture orders_by_gateway_order: %w", err)
	}
	return s.getOrderByID(ctx, id)
}

func (s *Scylla) getOrderByID(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	var (
		o                                   models.Order
		orderID                             gocql.UUID
		products, address                   string
		itemsTotal, discount, tax, shipping *inf.Dec
		total                               *inf.Dec
	)
	err := s.orders.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id).WithContext(ctx).Scan(
		&orderID, &o.BusinessOrderID, &o.UserID, &products, &address, &o.PaymentMethod,
		&itemsTotal, &discount, &tax, &shipping, &total,
		&o.CouponCode, &o.Status, &o.GatewayOrderID, &o.PaymentID, &o.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lecture commande: %w", err)
	}

	o.ID = orderID.String()
	if err := json.Unmarshal([]byte(products), &o.Products); err != nil {
		return nil, fmt.Errorf("décodage produits: %w", err)
	}
	if err := json.Unmarshal([]byte(address), &o.Address); err != nil {
		return nil, fmt.Errorf("décodage adresse: %w", err)
	}
	o.PaymentBreakdown = models.PaymentBreakdown{
		ItemsTotal: fromDec(itemsTotal),
		Discount:   fromDec(discount),
		Tax:        fromDec(tax),
		Shipping:   fromDec(shipping),
		Total:      fromDec(total),
	}
	return &o, nil
}

// --- Conversions decimal CQL ↔ shopspring ---

func toDec(d decimal.Decimal) *inf.Dec {
	return inf.NewDecBig(d.Coefficient(), inf.Scale(-d.Exponent()))
}

func fromDec(d *inf.Dec) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Set(d.UnscaledBig()), -int32(d.Scale()))
}
