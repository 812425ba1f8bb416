// Package reconcile conserve les paiements réussis dont la commande n'a pas pu être
// enregistrée, pour qu'un opérateur (ou cmd/reconcile) puisse rejouer le commit.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"cedra_checkout/internal/models"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "critical_recovery"

var ErrNotFound = errors.New("entrée de réconciliation introuvable")

// Entry : tout ce qu'il faut pour rejouer exactement le même commit.
type Entry struct {
	GatewayOrderID string              `json:"gatewayOrderId"`
	UserID         string              `json:"userId"`
	Proof          models.PaymentProof `json:"proof"`
	Draft          models.OrderDraft   `json:"draft"`
	Reason         string              `json:"reason"`
	Attempts       int                 `json:"attempts"`
	RecordedAt     time.Time           `json:"recordedAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	ResolvedAt     *time.Time          `json:"resolvedAt,omitempty"`
	OrderID        string              `json:"orderId,omitempty"`
}

func (e Entry) Resolved() bool { return e.ResolvedAt != nil }

type Journal struct {
	db  *bolt.DB
	now func() time.Time
}

// Open ouvre (ou crée) le fichier bolt du journal.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ouverture journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record ajoute l'entrée, ou incrémente Attempts si ce gatewayOrderId est déjà journalisé.
// La preuve et le brouillon d'origine ne sont jamais écrasés.
func (j *Journal) Record(e Entry) (*Entry, error) {
	if e.GatewayOrderID == "" {
		return nil, errors.New("entrée sans gatewayOrderId")
	}

	var result Entry
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := j.now()

		if existing := b.Get([]byte(e.GatewayOrderID)); existing != nil {
			if err := json.Unmarshal(existing, &result); err != nil {
				return err
			}
			result.Attempts++
			result.Reason = e.Reason
			result.UpdatedAt = now
		} else {
			result = e
			result.Attempts = 1
			result.RecordedAt = now
			result.UpdatedAt = now
		}

		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(result.GatewayOrderID), data)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (j *Journal) Get(gatewayOrderID string) (*Entry, error) {
	var e Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(gatewayOrderID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List renvoie les entrées par date d'enregistrement ; includeResolved ajoute celles déjà traitées.
func (j *Journal) List(includeResolved bool) ([]Entry, error) {
	entries := []Entry{}
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if includeResolved || !e.Resolved() {
				entries = append(entries, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].RecordedAt.Before(entries[b].RecordedAt) })
	return entries, nil
}

// MarkResolved rattache la commande finalement créée. Rappeler avec le même orderID est sans effet.
func (j *Journal) MarkResolved(gatewayOrderID, orderID string) (*Entry, error) {
	var result Entry
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(gatewayOrderID))
		if v == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(v, &result); err != nil {
			return err
		}
		if result.Resolved() && result.OrderID == orderID {
			return nil
		}

		now := j.now()
		result.ResolvedAt = &now
		result.UpdatedAt = now
		result.OrderID = orderID

		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(gatewayOrderID), data)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
