package account

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
)

// seedRecord accepts both the English field names and the agencia/conta
// names used by legacy account exports.
type seedRecord struct {
	Branch  *int            `json:"branch"`
	Agencia *int            `json:"agencia"`
	Number  *int            `json:"number"`
	Conta   *int            `json:"conta"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// ParseSeed decodes a JSON array of accounts created outside the ledger.
func ParseSeed(r io.Reader) ([]Account, error) {
	var records []seedRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	accounts := make([]Account, 0, len(records))
	for i, rec := range records {
		branch := firstSet(rec.Branch, rec.Agencia)
		number := firstSet(rec.Number, rec.Conta)
		if branch == nil || number == nil {
			return nil, fmt.Errorf("record %d: branch and number are required", i)
		}
		if rec.Balance.IsNegative() {
			return nil, fmt.Errorf("record %d: negative balance %s", i, rec.Balance)
		}
		accounts = append(accounts, Account{
			Branch:  *branch,
			Number:  *number,
			Name:    rec.Name,
			Balance: rec.Balance,
		})
	}
	return accounts, nil
}

// LoadSeedFile reads and parses the seed file at path.
func LoadSeedFile(path string) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	accounts, err := ParseSeed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return accounts, nil
}

func firstSet(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
