package account

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no account satisfies the filter at the time
	// of the operation.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateKey indicates a write would give two accounts the same
	// branch and number.
	ErrDuplicateKey = errors.New("duplicate account key")

	// ErrNegativeBalance indicates a write would persist a negative balance.
	ErrNegativeBalance = errors.New("balance cannot be negative")

	// ErrInvalidValue indicates an amount the backend cannot represent.
	ErrInvalidValue = errors.New("value out of range for account store")

	// ErrUnavailable wraps transient failures of the backing store.
	ErrUnavailable = errors.New("account store unavailable")
)

// Store persists accounts. Single-record operations act on the first match
// ordered by branch then number, and evaluate the filter atomically with the
// write.
type Store interface {
	FindOne(ctx context.Context, filter Filter) (Account, error)
	FindMany(ctx context.Context, filter Filter, opts FindOptions) ([]Account, error)
	UpdateOne(ctx context.Context, filter Filter, update Update) (Account, error)
	DeleteOne(ctx context.Context, filter Filter) (Account, error)
}

// Transactor is implemented by stores able to run several operations as one
// atomic unit. fn must only use the Store it receives.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Seeder loads accounts created outside the ledger.
type Seeder interface {
	InsertMany(ctx context.Context, accounts []Account) error
}

// Migrator prepares the physical schema of a store.
type Migrator interface {
	Migrate(ctx context.Context) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
