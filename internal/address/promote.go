// Package address résout l'adresse de livraison d'un checkout et maintient
// l'invariant « au plus une adresse par défaut par utilisateur ».
package address

import (
	"context"
	"errors"
	"fmt"

	"cedra_checkout/internal/models"
)

var ErrUnknownAddress = errors.New("adresse inconnue pour cet utilisateur")

// Book donne accès aux adresses d'un utilisateur : le store côté serveur,
// l'API REST côté client. SetDefault est une mise à jour isolée, sans transaction.
type Book interface {
	List(ctx context.Context) ([]models.Address, error)
	Create(ctx context.Context, draft models.Address) (*models.Address, error)
	SetDefault(ctx context.Context, addressID string, isDefault bool) error
}

// Promote fait de addressID l'adresse par défaut :
//  1. retrouve les adresses par défaut autres que la cible,
//  2. retire leur drapeau,
//  3. pose le drapeau sur la cible.
//
// Un arrêt entre 2 et 3 laisse zéro adresse par défaut. L'appel suivant converge
// vers exactement une, car l'étape 2 retire tous les drapeaux périmés.
func Promote(ctx context.Context, book Book, addressID string) error {
	addresses, err := book.List(ctx)
	if err != nil {
		return fmt.Errorf("lecture des adresses: %w", err)
	}

	var target *models.Address
	for i := range addresses {
		if addresses[i].ID == addressID {
			target = &addresses[i]
			break
		}
	}
	if target == nil {
		return ErrUnknownAddress
	}

	for _, a := range addresses {
		if a.ID == addressID || !a.IsDefault {
			continue
		}
		if err := book.SetDefault(ctx, a.ID, false); err != nil {
			return fmt.Errorf("retrait du défaut sur %s: %w", a.ID, err)
		}
	}

	if target.IsDefault {
		return nil
	}
	if err := book.SetDefault(ctx, addressID, true); err != nil {
		return fmt.Errorf("promotion de %s: %w", addressID, err)
	}
	return nil
}
