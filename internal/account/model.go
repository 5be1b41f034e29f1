package account

import "github.com/shopspring/decimal"

// Account is a customer account held at a branch.
type Account struct {
	ID           string          `json:"id"`
	Branch       int             `json:"branch"`
	Number       int             `json:"number"`
	Name         string          `json:"name"`
	Balance      decimal.Decimal `json:"balance"`
	PromotedFrom *int            `json:"promoted_from,omitempty"`
}

// Filter selects accounts. Nil fields are not constrained.
type Filter struct {
	Branch        *int
	Number        *int
	ExcludeBranch *int
	MinBalance    *decimal.Decimal
}

// Key matches the account identified by branch and number.
func Key(branch, number int) Filter {
	return Filter{Branch: &branch, Number: &number}
}

// ByNumber matches every account carrying number regardless of branch.
func ByNumber(number int) Filter {
	return Filter{Number: &number}
}

// InBranch matches every account of a branch.
func InBranch(branch int) Filter {
	return Filter{Branch: &branch}
}

// OutsideBranch matches every account not held at branch.
func OutsideBranch(branch int) Filter {
	return Filter{ExcludeBranch: &branch}
}

// WithMinBalance additionally requires balance >= min at the moment of the write.
func (f Filter) WithMinBalance(min decimal.Decimal) Filter {
	f.MinBalance = &min
	return f
}

// Matches reports whether a satisfies every constraint of f.
func (f Filter) Matches(a Account) bool {
	if f.Branch != nil && a.Branch != *f.Branch {
		return false
	}
	if f.Number != nil && a.Number != *f.Number {
		return false
	}
	if f.ExcludeBranch != nil && a.Branch == *f.ExcludeBranch {
		return false
	}
	if f.MinBalance != nil && a.Balance.LessThan(*f.MinBalance) {
		return false
	}
	return true
}

// Update describes a single-record mutation: an atomic balance increment plus
// optional field assignments.
type Update struct {
	BalanceDelta decimal.Decimal
	Branch       *int
	PromotedFrom *int
}

// Apply returns a with u applied.
func (u Update) Apply(a Account) Account {
	a.Balance = a.Balance.Add(u.BalanceDelta)
	if u.Branch != nil {
		a.Branch = *u.Branch
	}
	if u.PromotedFrom != nil {
		from := *u.PromotedFrom
		a.PromotedFrom = &from
	}
	return a
}

// SortField names an orderable account attribute.
type SortField string

const (
	SortByBalance SortField = "balance"
	SortByName    SortField = "name"
	SortByNumber  SortField = "number"
	SortByBranch  SortField = "branch"
)

// SortKey orders results by Field, descending when Desc is set.
type SortKey struct {
	Field SortField
	Desc  bool
}

// FindOptions controls ordering and size of FindMany results. Without sort
// keys results are ordered by branch then number. Limit <= 0 means no limit.
type FindOptions struct {
	Sort  []SortKey
	Limit int
}
