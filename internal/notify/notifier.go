// Package notify envoie la confirmation de commande : reçu HTML avec QR code,
// archivé dans MinIO, et e-mail au client.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"cedra_checkout/internal/models"
)

type Notifier struct {
	mailer  Mailer
	archive Archive
	timeout time.Duration
}

// NewNotifier : archive peut être nil (MinIO non configuré), le reçu part alors seulement par e-mail.
func NewNotifier(mailer Mailer, archive Archive) *Notifier {
	return &Notifier{mailer: mailer, archive: archive, timeout: 30 * time.Second}
}

// OrderConfirmed archive le reçu puis l'envoie par e-mail.
func (n *Notifier) OrderConfirmed(ctx context.Context, order models.Order, email string) error {
	var link string
	if n.archive != nil {
		body, err := RenderReceipt(order, "")
		if err != nil {
			return err
		}
		link, err = n.archive.Put(ctx, receiptKey(order.BusinessOrderID), body)
		if err != nil {
			// l'e-mail part quand même, sans lien
			log.Printf("⚠️ Archivage du reçu %s impossible: %v", order.BusinessOrderID, err)
			link = ""
		}
	}

	body, err := RenderReceipt(order, link)
	if err != nil {
		return err
	}
	if email == "" {
		return fmt.Errorf("pas d'adresse e-mail pour la commande %s", order.BusinessOrderID)
	}
	subject := fmt.Sprintf("✅ Commande %s confirmée", order.BusinessOrderID)
	if err := n.mailer.Send(ctx, email, subject, string(body)); err != nil {
		return fmt.Errorf("envoi e-mail %s: %w", order.BusinessOrderID, err)
	}
	log.Printf("📧 Confirmation envoyée: %s → %s", order.BusinessOrderID, email)
	return nil
}

// Async lance OrderConfirmed en arrière-plan ; les erreurs sont seulement journalisées.
func (n *Notifier) Async(order models.Order, email string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.OrderConfirmed(ctx, order, email); err != nil {
			log.Printf("❌ Notification commande %s: %v", order.BusinessOrderID, err)
		}
	}()
}
