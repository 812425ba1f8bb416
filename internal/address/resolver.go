package address

import (
	"context"
	"fmt"

	"cedra_checkout/internal/models"
)

// Selection : soit une adresse existante, soit un brouillon saisi dans le checkout.
type Selection struct {
	ExistingID  string
	Draft       *models.Address
	MakeDefault bool
}

type Resolver struct {
	book Book
}

func NewResolver(book Book) *Resolver {
	return &Resolver{book: book}
}

// Resolve renvoie l'id d'adresse à rattacher à la commande.
// known est la liste déjà chargée par l'appelant (nil pour la recharger).
func (r *Resolver) Resolve(ctx context.Context, sel Selection, known []models.Address) (string, error) {
	if known == nil {
		list, err := r.book.List(ctx)
		if err != nil {
			return "", fmt.Errorf("lecture des adresses: %w", err)
		}
		known = list
	}

	switch {
	case sel.ExistingID != "":
		for _, a := range known {
			if a.ID == sel.ExistingID {
				return a.ID, nil
			}
		}
		return "", ErrUnknownAddress

	case sel.Draft != nil:
		if err := Validate(*sel.Draft); err != nil {
			return "", err
		}
		draft := *sel.Draft
		draft.IsDefault = false
		created, err := r.book.Create(ctx, draft)
		if err != nil {
			return "", fmt.Errorf("création de l'adresse: %w", err)
		}
		// Première adresse de l'utilisateur : elle devient l'adresse par défaut.
		if len(known) == 0 || sel.MakeDefault {
			if err := Promote(ctx, r.book, created.ID); err != nil {
				return "", err
			}
		}
		return created.ID, nil
	}

	for _, a := range known {
		if a.IsDefault {
			return a.ID, nil
		}
	}
	return "", &ValidationError{Fields: map[string]string{"address": "obligatoire"}}
}
