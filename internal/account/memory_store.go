package account

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore creates a concurrency-safe in-memory store seeded with the
// given accounts. Accounts without an ID get a random one. An invalid seed is
// rejected as a whole.
func NewMemoryStore(seed ...Account) (Store, error) {
	s := &memoryStore{accounts: make(map[string]Account)}
	if err := s.InsertMany(context.Background(), seed); err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	return s, nil
}

// InsertMany inserts all accounts or none of them.
func (s *memoryStore) InsertMany(_ context.Context, accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]Account, 0, len(accounts))
	keys := make(map[[2]int]bool, len(accounts))
	ids := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Balance.IsNegative() {
			return fmt.Errorf("account %d/%d: %w", a.Branch, a.Number, ErrNegativeBalance)
		}
		key := [2]int{a.Branch, a.Number}
		if keys[key] || ids[a.ID] || s.keyTaken(a.Branch, a.Number, a.ID) {
			return fmt.Errorf("account %d/%d: %w", a.Branch, a.Number, ErrDuplicateKey)
		}
		if _, exists := s.accounts[a.ID]; exists {
			return fmt.Errorf("account id %s: %w", a.ID, ErrDuplicateKey)
		}
		keys[key] = true
		ids[a.ID] = true
		batch = append(batch, a)
	}
	for _, a := range batch {
		s.accounts[a.ID] = a
	}
	return nil
}

func (s *memoryStore) Migrate(context.Context) error { return nil }

func (s *memoryStore) FindOne(ctx context.Context, filter Filter) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, unavailable("find account", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.first(filter)
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) FindMany(ctx context.Context, filter Filter, opts FindOptions) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find accounts", err)
	}
	s.mu.RLock()
	matches := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if filter.Matches(a) {
			matches = append(matches, a)
		}
	}
	s.mu.RUnlock()

	SortAccounts(matches, opts.Sort)
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (s *memoryStore) UpdateOne(ctx context.Context, filter Filter, update Update) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, unavailable("update account", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.first(filter)
	if !ok {
		return Account{}, ErrNotFound
	}
	next := update.Apply(current)
	if next.Balance.IsNegative() {
		return Account{}, ErrNegativeBalance
	}
	if next.Branch != current.Branch && s.keyTaken(next.Branch, next.Number, next.ID) {
		return Account{}, ErrDuplicateKey
	}
	s.accounts[next.ID] = next
	return next, nil
}

func (s *memoryStore) DeleteOne(ctx context.Context, filter Filter) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, unavailable("delete account", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.first(filter)
	if !ok {
		return Account{}, ErrNotFound
	}
	delete(s.accounts, a.ID)
	return a, nil
}

// first must be called with mu held.
func (s *memoryStore) first(filter Filter) (Account, bool) {
	var (
		best  Account
		found bool
	)
	for _, a := range s.accounts {
		if !filter.Matches(a) {
			continue
		}
		if !found || keyLess(a, best) {
			best, found = a, true
		}
	}
	return best, found
}

func (s *memoryStore) keyTaken(branch, number int, exceptID string) bool {
	for id, a := range s.accounts {
		if id != exceptID && a.Branch == branch && a.Number == number {
			return true
		}
	}
	return false
}

func keyLess(a, b Account) bool {
	if a.Branch != b.Branch {
		return a.Branch < b.Branch
	}
	return a.Number < b.Number
}

// SortAccounts orders accounts by keys, falling back to branch and number so
// the order is total.
func SortAccounts(accounts []Account, keys []SortKey) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		for _, k := range keys {
			c := compareField(a, b, k.Field)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return keyLess(a, b)
	})
}

func compareField(a, b Account, field SortField) int {
	switch field {
	case SortByBalance:
		return a.Balance.Cmp(b.Balance)
	case SortByName:
		return cmp.Compare(a.Name, b.Name)
	case SortByNumber:
		return cmp.Compare(a.Number, b.Number)
	case SortByBranch:
		return cmp.Compare(a.Branch, b.Branch)
	default:
		return 0
	}
}
