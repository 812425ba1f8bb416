package gateway

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// rejected marque une réponse 4xx : la passerelle répond, le disjoncteur ne doit pas compter d'échec.
type rejected struct {
	err error
}

func (r rejected) Error() string { return r.err.Error() }
func (r rejected) Unwrap() error { return r.err }

func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var r rejected
			return err == nil || errors.As(err, &r)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("⚠️ Disjoncteur %s: %s → %s", name, from, to)
		},
	})
}

// breakerOpen indique que l'appel n'a même pas été tenté.
func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
