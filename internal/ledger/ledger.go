package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/lock"
)

var (
	// ErrInvalidAmount rejects non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAccountNotFound occurs when no account matches the branch and number.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSourceNotFound occurs when the debited account of a transfer is missing.
	ErrSourceNotFound = errors.New("source account not found")

	// ErrDestNotFound occurs when the credited account of a transfer is missing.
	ErrDestNotFound = errors.New("destination account not found")

	// ErrInsufficientFunds occurs when the debit, fees included, exceeds the
	// available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAmbiguousAccount occurs when an account number without a branch
	// resolves to more than one account.
	ErrAmbiguousAccount = errors.New("account number is ambiguous, branch required")

	// ErrSameAccount rejects transfers whose two legs are the same account.
	ErrSameAccount = errors.New("source and destination are the same account")

	// ErrStoreUnavailable wraps transient store or lock failures. No partial
	// mutation is left behind, so callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	// PrivateBranch is the branch holding promoted top-balance accounts.
	PrivateBranch = 99
)

var (
	// WithdrawalFee is charged on every withdrawal on top of the amount.
	WithdrawalFee = decimal.NewFromInt(1)
	// TransferFee is charged to the source of a transfer between branches.
	TransferFee = decimal.NewFromInt(8)
)

// AccountRef points at an account by number and, optionally, branch. Without
// a branch the number must be unique across branches.
type AccountRef struct {
	Number int
	Branch *int
}

// Ref builds a branch-qualified reference.
func Ref(branch, number int) AccountRef {
	return AccountRef{Number: number, Branch: &branch}
}

// NumberRef builds a reference by account number only.
func NumberRef(number int) AccountRef {
	return AccountRef{Number: number}
}

func (r AccountRef) filter() account.Filter {
	if r.Branch != nil {
		return account.Key(*r.Branch, r.Number)
	}
	return account.ByNumber(r.Number)
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	From   AccountRef
	To     AccountRef
	Amount decimal.Decimal
}

// TransferResult holds both legs of a completed transfer.
type TransferResult struct {
	Source      account.Account
	Destination account.Account
	Fee         decimal.Decimal
}

// DeleteResult describes a removed account.
type DeleteResult struct {
	Account           account.Account
	RemainingInBranch int
}

// storeErr maps store failures onto the ledger taxonomy. notFound is the
// error reported for account.ErrNotFound in the caller's context.
func storeErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return notFound
	case errors.Is(err, account.ErrNegativeBalance):
		return ErrInsufficientFunds
	case errors.Is(err, account.ErrInvalidValue):
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	case errors.Is(err, account.ErrUnavailable),
		errors.Is(err, lock.ErrNotAcquired),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// TranslateStoreError maps a store failure outside any single operation,
// such as a read, onto the ledger taxonomy.
func TranslateStoreError(err error) error {
	return storeErr(err, ErrAccountNotFound)
}

// isLedgerErr reports whether err already belongs to the ledger taxonomy.
func isLedgerErr(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrAccountNotFound, ErrSourceNotFound, ErrDestNotFound,
		ErrInsufficientFunds, ErrAmbiguousAccount, ErrSameAccount, ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
