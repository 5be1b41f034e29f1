package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/ledger"
)

var (
	// ErrBranchEmpty occurs when averaging a branch with no accounts.
	ErrBranchEmpty = errors.New("branch has no accounts")
	// ErrInvalidLimit rejects non-positive result limits.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrInvalidOrder rejects unknown sort directions.
	ErrInvalidOrder = errors.New("sort must be asc, desc, 1 or -1")
)

// BranchAverage is the mean balance of a branch.
type BranchAverage struct {
	Branch   int             `json:"branch"`
	Balance  decimal.Decimal `json:"balance"`
	Accounts int             `json:"accounts"`
}

// Service answers read-only queries over the account store.
type Service struct {
	store   account.Store
	timeout time.Duration
}

// NewService builds a report service whose queries are bounded by timeout.
func NewService(store account.Store, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{store: store, timeout: timeout}
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, branch, number int) (account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := s.store.FindOne(ctx, account.Key(branch, number))
	if err != nil {
		return account.Account{}, ledger.TranslateStoreError(err)
	}
	return a, nil
}

// List returns every account ordered by balance. order accepts asc, desc, 1
// and -1.
func (s *Service) List(ctx context.Context, order string) ([]account.Account, error) {
	var desc bool
	switch strings.ToLower(order) {
	case "asc", "1":
	case "desc", "-1":
		desc = true
	default:
		return nil, ErrInvalidOrder
	}
	return s.find(ctx, account.Filter{}, account.FindOptions{
		Sort: []account.SortKey{{Field: account.SortByBalance, Desc: desc}},
	})
}

// AverageBalance returns the mean balance of branch rounded to cents.
func (s *Service) AverageBalance(ctx context.Context, branch int) (BranchAverage, error) {
	accounts, err := s.find(ctx, account.InBranch(branch), account.FindOptions{})
	if err != nil {
		return BranchAverage{}, err
	}
	if len(accounts) == 0 {
		return BranchAverage{}, ErrBranchEmpty
	}

	sum := decimal.Zero
	for _, a := range accounts {
		sum = sum.Add(a.Balance)
	}
	return BranchAverage{
		Branch:   branch,
		Balance:  sum.Div(decimal.NewFromInt(int64(len(accounts)))).Round(2),
		Accounts: len(accounts),
	}, nil
}

// Poorest returns up to limit accounts by ascending balance.
func (s *Service) Poorest(ctx context.Context, limit int) ([]account.Account, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.find(ctx, account.Filter{}, account.FindOptions{
		Sort:  []account.SortKey{{Field: account.SortByBalance}},
		Limit: limit,
	})
}

// Richest returns up to limit accounts by descending balance, then name.
func (s *Service) Richest(ctx context.Context, limit int) ([]account.Account, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.find(ctx, account.Filter{}, account.FindOptions{
		Sort: []account.SortKey{
			{Field: account.SortByBalance, Desc: true},
			{Field: account.SortByName},
		},
		Limit: limit,
	})
}

func (s *Service) find(ctx context.Context, filter account.Filter, opts account.FindOptions) ([]account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	accounts, err := s.store.FindMany(ctx, filter, opts)
	if err != nil {
		return nil, ledger.TranslateStoreError(err)
	}
	if accounts == nil {
		accounts = []account.Account{}
	}
	return accounts, nil
}
