package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"cedra_checkout/internal/models"
)

type PaymentState string

const (
	PaymentIdle          PaymentState = "IDLE"
	PaymentIntentCreated PaymentState = "INTENT_CREATED"
	PaymentGatewayOpen   PaymentState = "GATEWAY_OPEN"
	PaymentSucceeded     PaymentState = "SUCCEEDED"
	PaymentFailed        PaymentState = "FAILED"
	PaymentAbandoned     PaymentState = "ABANDONED"
)

// GatewayFailure est l'événement payment.failed, ou la fermeture de l'UI sans callback.
type GatewayFailure struct {
	Reason    string
	Abandoned bool
}

func (f GatewayFailure) Error() string {
	if f.Abandoned {
		return "paiement abandonné"
	}
	return "paiement refusé: " + f.Reason
}

// Prefill est transmis à l'UI de la passerelle.
type Prefill struct {
	Name  string
	Email string
	Phone string
}

// GatewayCheckout décrit ce que l'UI de la passerelle doit encaisser.
type GatewayCheckout struct {
	Intent  models.PaymentIntent
	Prefill Prefill
}

// Handle expose deux canaux à un seul envoi : succès (preuve) ou échec.
type Handle struct {
	Success <-chan models.PaymentProof
	Failure <-chan GatewayFailure
	// Close ferme l'UI si l'orchestrateur abandonne (peut être nil).
	Close func()
}

// Gateway ouvre l'UI de paiement externe.
type Gateway interface {
	Open(ctx context.Context, checkout GatewayCheckout) (*Handle, error)
}

// Callbacks est le côté émetteur d'un Handle : le premier appel gagne, les suivants sont ignorés.
type Callbacks struct {
	once    sync.Once
	success chan models.PaymentProof
	failure chan GatewayFailure
}

// NewHandle crée un Handle et ses callbacks, pour les adaptateurs de passerelle.
func NewHandle(closeUI func()) (*Handle, *Callbacks) {
	cb := &Callbacks{
		success: make(chan models.PaymentProof, 1),
		failure: make(chan GatewayFailure, 1),
	}
	return &Handle{Success: cb.success, Failure: cb.failure, Close: closeUI}, cb
}

func (c *Callbacks) Succeed(proof models.PaymentProof) {
	c.once.Do(func() { c.success <- proof })
}

func (c *Callbacks) Fail(reason string) {
	c.once.Do(func() { c.failure <- GatewayFailure{Reason: reason} })
}

func (c *Callbacks) Abandon() {
	c.once.Do(func() { c.failure <- GatewayFailure{Abandoned: true} })
}

// IntentCreator crée l'intent de paiement côté backend.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req models.IntentRequest) (models.PaymentIntent, error)
}

// PaymentSession : Idle → IntentCreated → GatewayOpen → {Succeeded | Failed | Abandoned}.
// Failed et Abandoned ramènent à Idle ; Succeeded est définitif.
type PaymentSession struct {
	mu      sync.Mutex
	state   PaymentState
	intent  *models.PaymentIntent
	backend IntentCreator
	gateway Gateway
	// Timeout : délai au-delà duquel l'UI est considérée abandonnée (0 = pas de limite).
	Timeout time.Duration
}

func NewPaymentSession(backend IntentCreator, gateway Gateway) *PaymentSession {
	return &PaymentSession{state: PaymentIdle, backend: backend, gateway: gateway, Timeout: 15 * time.Minute}
}

func (p *PaymentSession) State() PaymentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PaymentSession) Intent() *models.PaymentIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent
}

func (p *PaymentSession) set(s PaymentState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Pay crée l'intent au montant exact du détail figé, ouvre la passerelle et attend
// le premier événement : preuve, échec, abandon ou annulation du contexte.
// Une preuve déjà livrée l'emporte toujours sur l'annulation et le délai.
func (p *PaymentSession) Pay(ctx context.Context, req models.IntentRequest, prefill Prefill) (models.PaymentProof, error) {
	if st := p.State(); st != PaymentIdle {
		return models.PaymentProof{}, wrap("payment", KindValidation, errors.New("session de paiement non disponible: "+string(st)))
	}

	total := req.Amount
	intent, err := p.backend.CreatePaymentIntent(ctx, req)
	if err != nil {
		kind := KindOf(err)
		switch kind {
		case KindUnauthenticated, KindValidation, KindCouponInvalid, KindCouponExpired:
		default:
			kind = KindGatewayUnavailable
		}
		return models.PaymentProof{}, wrap("create-intent", kind, err)
	}
	if !intent.Amount.Equal(total) {
		return models.PaymentProof{}, wrap("create-intent", KindGatewayUnavailable,
			errors.New("montant de l'intent différent du total: "+intent.Amount.String()+" ≠ "+total.String()))
	}
	p.mu.Lock()
	p.state = PaymentIntentCreated
	p.intent = &intent
	p.mu.Unlock()

	handle, err := p.gateway.Open(ctx, GatewayCheckout{Intent: intent, Prefill: prefill})
	if err != nil {
		p.reset()
		return models.PaymentProof{}, wrap("open-gateway", KindGatewayUnavailable, err)
	}
	p.set(PaymentGatewayOpen)

	var timeout <-chan time.Time
	if p.Timeout > 0 {
		timer := time.NewTimer(p.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case proof := <-handle.Success:
		p.set(PaymentSucceeded)
		return proof, nil

	case failure := <-handle.Failure:
		if failure.Abandoned {
			p.set(PaymentAbandoned)
			p.reset()
			return models.PaymentProof{}, wrap("gateway", KindGatewayAbandoned, failure)
		}
		p.set(PaymentFailed)
		p.reset()
		return models.PaymentProof{}, wrap("gateway", KindGatewayFailed, failure)

	case <-timeout:
		if proof, ok := p.abandon(handle); ok {
			return proof, nil
		}
		return models.PaymentProof{}, wrap("gateway", KindGatewayAbandoned, GatewayFailure{Abandoned: true})

	case <-ctx.Done():
		// annulation avant Succeeded : rien d'irréversible, aucune compensation
		if proof, ok := p.abandon(handle); ok {
			return proof, nil
		}
		return models.PaymentProof{}, wrap("gateway", KindGatewayAbandoned, ctx.Err())
	}
}

// abandon ferme l'UI sauf si une preuve est déjà là, y compris livrée pendant la fermeture.
func (p *PaymentSession) abandon(handle *Handle) (models.PaymentProof, bool) {
	if proof, ok := p.delivered(handle); ok {
		return proof, true
	}
	if handle.Close != nil {
		handle.Close()
	}
	if proof, ok := p.delivered(handle); ok {
		return proof, true
	}
	p.set(PaymentAbandoned)
	p.reset()
	return models.PaymentProof{}, false
}

func (p *PaymentSession) delivered(handle *Handle) (models.PaymentProof, bool) {
	select {
	case proof := <-handle.Success:
		p.set(PaymentSucceeded)
		return proof, true
	default:
		return models.PaymentProof{}, false
	}
}

// reset ramène la session à Idle ; l'intent précédent est oublié.
func (p *PaymentSession) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PaymentIdle
	p.intent = nil
}
