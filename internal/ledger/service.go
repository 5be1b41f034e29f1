package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/lock"
	"github.com/congo-pay/branch_ledger/internal/logging"
	"github.com/congo-pay/branch_ledger/internal/notification"
)

const defaultStoreTimeout = 5 * time.Second

// Service applies balance mutations to the account store. Every operation
// either fully applies or fails without leaving a partial write behind.
type Service struct {
	store    account.Store
	locker   lock.Locker
	logger   *slog.Logger
	notifier notification.Notifier
	timeout  time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithStoreTimeout bounds every operation, store round trips and lock waits
// included.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithNotifier sends a message to account holders after each applied
// mutation.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// NewService builds a ledger service. A nil locker serializes within the
// process only.
func NewService(store account.Store, locker lock.Locker, logger *slog.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{store: store, locker: locker, logger: logger, timeout: defaultStoreTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// notify never fails the operation; the mutation is already applied.
func (s *Service) notify(ctx context.Context, kind string, a account.Account, body string) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{Kind: kind, Destination: notification.Destination(a.Branch, a.Number), Body: body}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", kind),
			slog.String("destination", msg.Destination),
			slog.Any("error", err),
		)
	}
}

// Deposit credits amount to the account with a single atomic increment.
func (s *Service) Deposit(ctx context.Context, branch, number int, amount decimal.Decimal) (account.Account, error) {
	if !amount.IsPositive() {
		return account.Account{}, ErrInvalidAmount
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	a, err := s.store.UpdateOne(ctx, account.Key(branch, number), account.Update{BalanceDelta: amount})
	if err != nil {
		return account.Account{}, storeErr(err, ErrAccountNotFound)
	}
	s.notify(ctx, notification.KindDeposit, a, fmt.Sprintf("credited %s, balance %s", amount, a.Balance))
	return a, nil
}

// Withdraw debits amount plus WithdrawalFee. A negative amount is taken as its
// absolute value. The sufficiency check and the debit are one conditional
// update, so concurrent withdrawals cannot overdraw the account.
func (s *Service) Withdraw(ctx context.Context, branch, number int, amount decimal.Decimal) (account.Account, error) {
	amount = amount.Abs()
	if !amount.IsPositive() {
		return account.Account{}, ErrInvalidAmount
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	a, err := debit(ctx, s.store, account.Key(branch, number), amount.Add(WithdrawalFee), ErrAccountNotFound)
	if err != nil {
		return account.Account{}, err
	}
	s.notify(ctx, notification.KindWithdrawal, a, fmt.Sprintf("debited %s plus fee %s, balance %s", amount, WithdrawalFee, a.Balance))
	return a, nil
}

// DeleteAccount removes an account. RemainingInBranch is -1 when the
// follow-up count could not be computed; the deletion itself still stands.
func (s *Service) DeleteAccount(ctx context.Context, branch, number int) (DeleteResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	deleted, err := s.store.DeleteOne(ctx, account.Key(branch, number))
	if err != nil {
		return DeleteResult{}, storeErr(err, ErrAccountNotFound)
	}

	s.notify(ctx, notification.KindAccountClosed, deleted, fmt.Sprintf("account closed with balance %s", deleted.Balance))

	res := DeleteResult{Account: deleted, RemainingInBranch: -1}
	remaining, err := s.store.FindMany(ctx, account.InBranch(branch), account.FindOptions{})
	if err != nil {
		s.logger.Warn("count remaining accounts failed",
			slog.Int("branch", branch),
			slog.Any("error", err),
		)
		return res, nil
	}
	res.RemainingInBranch = len(remaining)
	return res, nil
}

// debit decrements key's balance by amount only if the balance covers it.
func debit(ctx context.Context, store account.Store, key account.Filter, amount decimal.Decimal, notFound error) (account.Account, error) {
	a, err := store.UpdateOne(ctx, key.WithMinBalance(amount), account.Update{BalanceDelta: amount.Neg()})
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, account.ErrNotFound) && !errors.Is(err, account.ErrNegativeBalance) {
		return account.Account{}, storeErr(err, notFound)
	}
	if _, err := store.FindOne(ctx, key); err != nil {
		return account.Account{}, storeErr(err, notFound)
	}
	return account.Account{}, ErrInsufficientFunds
}

// resolve looks an account up by reference. Number-only references must match
// exactly one account.
func resolve(ctx context.Context, store account.Store, ref AccountRef, notFound error) (account.Account, error) {
	if ref.Branch != nil {
		a, err := store.FindOne(ctx, ref.filter())
		if err != nil {
			return account.Account{}, storeErr(err, notFound)
		}
		return a, nil
	}

	matches, err := store.FindMany(ctx, ref.filter(), account.FindOptions{Limit: 2})
	if err != nil {
		return account.Account{}, storeErr(err, notFound)
	}
	switch len(matches) {
	case 0:
		return account.Account{}, notFound
	case 1:
		return matches[0], nil
	default:
		return account.Account{}, fmt.Errorf("%w: %d", ErrAmbiguousAccount, ref.Number)
	}
}

func accountLockKey(number int) string {
	return fmt.Sprintf("ledger:account:%d", number)
}

// lockErr maps a failure surfaced by the locker. Errors returned by the locked
// function are already part of the ledger taxonomy and pass through.
func lockErr(err error) error {
	if err == nil || isLedgerErr(err) {
		return err
	}
	return storeErr(err, ErrAccountNotFound)
}
