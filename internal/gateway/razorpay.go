package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

type Razorpay struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[razorpayOrder]
	now       func() time.Time
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// NewRazorpay : client peut être nil (client HTTP avec timeout de 10 s).
func NewRazorpay(keyID, keySecret, baseURL string, client *http.Client) *Razorpay {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Razorpay{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      client,
		breaker:   newBreaker[razorpayOrder]("razorpay"),
		now:       time.Now,
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (models.PaymentIntent, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   models.MinorUnits(amount),
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return models.PaymentIntent{}, err
	}

	order, err := r.breaker.Execute(func() (razorpayOrder, error) {
		return r.postOrder(ctx, body)
	})
	if err != nil {
		if breakerOpen(err) {
			log.Printf("⚠️ Razorpay: disjoncteur ouvert, création d'ordre refusée")
		}
		return models.PaymentIntent{}, unavailable(r.Name(), err)
	}

	log.Printf("💳 Ordre Razorpay créé: %s (%d %s)", order.ID, order.Amount, order.Currency)
	return models.PaymentIntent{
		GatewayOrderID: order.ID,
		Amount:         models.FromMinorUnits(order.Amount),
		Currency:       order.Currency,
		Provider:       r.Name(),
		CreatedAt:      r.now(),
	}, nil
}

func (r *Razorpay) postOrder(ctx context.Context, body []byte) (razorpayOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return razorpayOrder{}, err
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return razorpayOrder{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return razorpayOrder{}, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return razorpayOrder{}, rejected{fmt.Errorf("razorpay %d: %s", resp.StatusCode, raw)}
	}
	if resp.StatusCode != http.StatusOK {
		return razorpayOrder{}, fmt.Errorf("razorpay %d: %s", resp.StatusCode, raw)
	}

	var order razorpayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return razorpayOrder{}, fmt.Errorf("réponse razorpay illisible: %w", err)
	}
	if order.ID == "" {
		return razorpayOrder{}, fmt.Errorf("réponse razorpay sans id")
	}
	return order, nil
}

// Verify recalcule HMAC_SHA256(orderId|paymentId) avec le secret et compare en temps constant.
func (r *Razorpay) Verify(_ context.Context, proof models.PaymentProof, intent models.PaymentIntent) error {
	if proof.PaymentID == "" || proof.Signature == "" {
		return fmt.Errorf("%w: champs manquants", ErrProofInvalid)
	}
	if proof.GatewayOrderID != intent.GatewayOrderID {
		return fmt.Errorf("%w: ordre %s ≠ intent %s", ErrProofInvalid, proof.GatewayOrderID, intent.GatewayOrderID)
	}

	expected := Sign(r.keySecret, proof.GatewayOrderID, proof.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(proof.Signature))) {
		return fmt.Errorf("%w: signature", ErrProofInvalid)
	}
	return nil
}

// Sign produit la signature que Razorpay renvoie au client après un paiement réussi.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
