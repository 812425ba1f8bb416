// Package client implémente checkout.Backend et checkout.Cart au-dessus de l'API REST.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cedra_checkout/internal/checkout"
	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

// APIError est le corps d'erreur {"error", "code"} renvoyé par le backend.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

var codeKinds = map[string]checkout.Kind{
	"validation":          checkout.KindValidation,
	"breakdown_mismatch":  checkout.KindValidation,
	"not_found":           checkout.KindValidation,
	"unauthenticated":     checkout.KindUnauthenticated,
	"coupon_invalid":      checkout.KindCouponInvalid,
	"coupon_expired":      checkout.KindCouponExpired,
	"gateway_unavailable": checkout.KindGatewayUnavailable,
	"proof_invalid":       checkout.KindProofInvalid,
	"persistence_failed":  checkout.KindNetwork,
	"rate_limited":        checkout.KindNetwork,
	"commit_in_progress":  checkout.KindNetwork,
}

type response struct {
	status int
	body   []byte
}

// clientError : le backend a répondu 4xx, le disjoncteur ne compte pas d'échec.
type clientError struct {
	resp response
}

func (e clientError) Error() string { return fmt.Sprintf("http %d", e.resp.status) }

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
}

// New : base peut être nil (timeout 15 s). Chaque requête porte le jeton de tokens en Bearer.
func New(baseURL string, tokens oauth2.TokenSource, base *http.Client) *Client {
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	httpClient := base
	if tokens != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, tokens)
		httpClient.Timeout = base.Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
			Name:    "checkout-api",
			Timeout: 20 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var ce clientError
				return err == nil || errors.As(err, &ce)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("⚠️ Disjoncteur %s: %s → %s", name, from, to)
			},
		}),
	}
}

// StaticToken : source de jeton pour un JWT déjà obtenu auprès du fournisseur d'identité.
func StaticToken(jwt string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: jwt, TokenType: "Bearer"})
}

func (c *Client) do(ctx context.Context, step, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &checkout.Error{Kind: checkout.KindValidation, Step: step, Err: err}
		}
		payload = raw
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		return c.send(ctx, method, path, payload)
	})

	var ce clientError
	var apiErr *APIError
	switch {
	case errors.As(err, &ce):
		apiErr = decodeError(ce.resp)
		return &checkout.Error{Kind: kindFor(apiErr), Step: step, Err: apiErr}
	case errors.As(err, &apiErr):
		return &checkout.Error{Kind: kindFor(apiErr), Step: step, Err: apiErr}
	case err != nil:
		return &checkout.Error{Kind: checkout.KindNetwork, Step: step, Err: err}
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &checkout.Error{Kind: checkout.KindNetwork, Step: step, Err: fmt.Errorf("réponse illisible: %w", err)}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return response{}, err
	}
	resp := response{status: res.StatusCode, body: raw}
	switch {
	case res.StatusCode >= 500:
		return response{}, decodeError(resp)
	case res.StatusCode >= 400:
		return response{}, clientError{resp}
	}
	return resp, nil
}

func decodeError(resp response) *APIError {
	apiErr := &APIError{Status: resp.status}
	if err := json.Unmarshal(resp.body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.status)
	}
	return apiErr
}

func kindFor(apiErr *APIError) checkout.Kind {
	if kind, ok := codeKinds[apiErr.Code]; ok {
		return kind
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return checkout.KindUnauthenticated
	case apiErr.Status >= 500:
		return checkout.KindNetwork
	default:
		return checkout.KindValidation
	}
}

func (c *Client) ListAddresses(ctx context.Context) ([]models.Address, error) {
	var out []models.Address
	if err := c.do(ctx, "addresses", http.MethodGet, "/api/addresses", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Address{}
	}
	return out, nil
}

func (c *Client) CreateAddress(ctx context.Context, draft models.Address) (*models.Address, error) {
	var out models.Address
	if err := c.do(ctx, "create-address", http.MethodPost, "/api/addresses", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAddress(ctx context.Context, addressID string, upd models.AddressUpdate) (*models.Address, error) {
	var out models.Address
	if err := c.do(ctx, "update-address", http.MethodPut, "/api/addresses/"+addressID, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	var out struct {
		Coupons []models.Coupon `json:"coupons"`
	}
	if err := c.do(ctx, "coupons", http.MethodGet, "/api/coupons", nil, &out); err != nil {
		return nil, err
	}
	return out.Coupons, nil
}

func (c *Client) ApplyCoupon(ctx context.Context, code string, orderTotal decimal.Decimal) (models.AppliedCoupon, error) {
	in := map[string]any{"code": code, "orderTotal": orderTotal}
	var out models.AppliedCoupon
	err := c.do(ctx, "apply-coupon", http.MethodPost, "/api/coupons/apply", in, &out)
	return out, err
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req models.IntentRequest) (models.PaymentIntent, error) {
	var out models.PaymentIntent
	err := c.do(ctx, "create-intent", http.MethodPost, "/api/payment/create-order", req, &out)
	return out, err
}

func (c *Client) VerifyPayment(ctx context.Context, proof models.PaymentProof, draft models.OrderDraft) (*models.Order, error) {
	var out models.Order
	in := models.VerifyRequest{PaymentProof: proof, OrderDraft: draft}
	if err := c.do(ctx, "verify", http.MethodPost, "/api/payment/verify", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaceCashOnDelivery(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, "place-order", http.MethodPost, "/api/orders", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cart renvoie le panier de l'utilisateur du jeton.
func (c *Client) Cart() checkout.Cart {
	return cart{c}
}

type cart struct {
	c *Client
}

func (k cart) Snapshot(ctx context.Context) (models.CartSnapshot, error) {
	var out models.CartSnapshot
	err := k.c.do(ctx, "cart", http.MethodGet, "/api/cart", nil, &out)
	return out, err
}

func (k cart) Clear(ctx context.Context) error {
	return k.c.do(ctx, "clear-cart", http.MethodDelete, "/api/cart", nil, nil)
}

var (
	_ checkout.Backend = (*Client)(nil)
	_ checkout.Cart    = cart{}
)
