package checkout

import (
	"errors"
	"fmt"
)

// Kind classe les échecs d'un checkout ; la machine à états choisit l'état final d'après lui.
type Kind int

const (
	KindNetwork Kind = iota
	KindValidation
	KindUnauthenticated
	KindCouponInvalid
	KindCouponExpired
	KindGatewayUnavailable
	KindGatewayFailed
	KindGatewayAbandoned
	KindProofInvalid
	KindCriticalRecovery
)

var kindNames = map[Kind]string{
	KindNetwork:            "network",
	KindValidation:         "validation",
	KindUnauthenticated:    "unauthenticated",
	KindCouponInvalid:      "coupon_invalid",
	KindCouponExpired:      "coupon_expired",
	KindGatewayUnavailable: "gateway_unavailable",
	KindGatewayFailed:      "gateway_failed",
	KindGatewayAbandoned:   "gateway_abandoned",
	KindProofInvalid:       "proof_invalid",
	KindCriticalRecovery:   "critical_recovery",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Recoverable : l'utilisateur peut relancer un checkout sans effet résiduel.
func (k Kind) Recoverable() bool {
	return k != KindProofInvalid && k != KindCriticalRecovery
}

var ErrIllegalTransition = errors.New("transition d'état de checkout illégale")

// Error porte le contexte d'un échec : étape, et si une action irréversible (paiement) l'a précédé.
type Error struct {
	Kind         Kind
	Step         string
	Irreversible bool
	Err          error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("checkout %s [%s]", e.Step, e.Kind)
	if e.Irreversible {
		msg += " après paiement"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is permet errors.Is(err, &Error{Kind: KindCouponInvalid}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Step == "" && t.Err == nil && t.Kind == e.Kind
}

func wrap(step string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// KindOf retrouve la catégorie d'une erreur ; à défaut, réseau.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNetwork
}

// classify enveloppe err sous une nouvelle étape en conservant sa catégorie d'origine.
func classify(step string, err error) *Error {
	return wrap(step, KindOf(err), err)
}

// UserMessage est le texte affiché pour un échec.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "Certaines informations sont invalides, vérifiez le formulaire."
	case KindUnauthenticated:
		return "Veuillez vous connecter pour continuer."
	case KindCouponInvalid:
		return "Ce code promo n'est pas valide."
	case KindCouponExpired:
		return "Ce code promo a expiré."
	case KindGatewayUnavailable:
		return "Le paiement est momentanément indisponible, réessayez."
	case KindGatewayFailed:
		return "Le paiement a échoué, aucun montant n'a été débité."
	case KindGatewayAbandoned:
		return "Paiement annulé."
	case KindProofInvalid:
		return "Le paiement n'a pas pu être vérifié. Contactez le support."
	case KindCriticalRecovery:
		return "Votre paiement a bien été reçu mais la commande n'a pas pu être finalisée. " +
			"Notre équipe va la traiter, votre panier a été conservé."
	default:
		return "Problème de connexion, réessayez."
	}
}
