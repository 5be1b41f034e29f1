package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker guarding a store.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	Cooldown            time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerSettings trips after five consecutive infrastructure failures
// and lets a trial request through after thirty seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "account-store",
		ConsecutiveFailures: 5,
		Cooldown:            30 * time.Second,
		HalfOpenRequests:    1,
	}
}

type breakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

type breakerTxStore struct {
	*breakerStore
	tx Transactor
}

// NewBreakerStore wraps inner with a circuit breaker. Only infrastructure
// failures count against the breaker; domain outcomes such as ErrNotFound do
// not. While open, every call fails fast with ErrUnavailable. The returned
// store implements Transactor, Seeder and Migrator when inner does.
func NewBreakerStore(inner Store, settings BreakerSettings, logger *slog.Logger) Store {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}
	if settings.Name == "" {
		settings.Name = DefaultBreakerSettings().Name
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isInfrastructureError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("account store breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
		},
	})

	base := &breakerStore{inner: inner, breaker: cb}
	if tx, ok := inner.(Transactor); ok {
		return &breakerTxStore{breakerStore: base, tx: tx}
	}
	return base
}

// isInfrastructureError reports failures of the backend itself. A caller
// giving up is not one.
func isInfrastructureError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *breakerStore) FindOne(ctx context.Context, filter Filter) (Account, error) {
	return execute(s.breaker, func() (Account, error) { return s.inner.FindOne(ctx, filter) })
}

func (s *breakerStore) FindMany(ctx context.Context, filter Filter, opts FindOptions) ([]Account, error) {
	return execute(s.breaker, func() ([]Account, error) { return s.inner.FindMany(ctx, filter, opts) })
}

func (s *breakerStore) UpdateOne(ctx context.Context, filter Filter, update Update) (Account, error) {
	return execute(s.breaker, func() (Account, error) { return s.inner.UpdateOne(ctx, filter, update) })
}

func (s *breakerStore) DeleteOne(ctx context.Context, filter Filter) (Account, error) {
	return execute(s.breaker, func() (Account, error) { return s.inner.DeleteOne(ctx, filter) })
}

func (s *breakerStore) InsertMany(ctx context.Context, accounts []Account) error {
	seeder, ok := s.inner.(Seeder)
	if !ok {
		return errors.New("account store does not support seeding")
	}
	_, err := execute(s.breaker, func() (struct{}, error) { return struct{}{}, seeder.InsertMany(ctx, accounts) })
	return err
}

func (s *breakerStore) Migrate(ctx context.Context) error {
	migrator, ok := s.inner.(Migrator)
	if !ok {
		return nil
	}
	_, err := execute(s.breaker, func() (struct{}, error) { return struct{}{}, migrator.Migrate(ctx) })
	return err
}

// WithinTx runs the whole transaction as one breaker call. Operations inside
// fn hit the transactional store directly.
func (s *breakerTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	_, err := execute(s.breaker, func() (struct{}, error) { return struct{}{}, s.tx.WithinTx(ctx, fn) })
	return err
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, errors.Join(ErrUnavailable, err)
	}
	out, _ := res.(T)
	return out, err
}
