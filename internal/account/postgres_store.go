package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgNumericRange    = "22003"

	accountColumns = `id, branch, number, owner_name, balance::text, promoted_from`

	schemaDDL = `
CREATE TABLE IF NOT EXISTS bank_accounts (
    id            UUID PRIMARY KEY,
    branch        INTEGER NOT NULL,
    number        INTEGER NOT NULL,
    owner_name    TEXT NOT NULL DEFAULT '',
    balance       NUMERIC NOT NULL DEFAULT 0 CONSTRAINT bank_accounts_balance_non_negative CHECK (balance >= 0),
    promoted_from INTEGER,
    CONSTRAINT bank_accounts_branch_number_key UNIQUE (branch, number)
);
CREATE INDEX IF NOT EXISTS bank_accounts_number_idx ON bank_accounts (number);
CREATE INDEX IF NOT EXISTS bank_accounts_balance_idx ON bank_accounts (balance);`
)

var sortColumns = map[SortField]string{
	SortByBalance: "balance",
	SortByName:    "owner_name",
	SortByNumber:  "number",
	SortByBranch:  "branch",
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps accounts in the bank_accounts table.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Migrate creates the accounts table and its indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return unavailable("migrate accounts", err)
	}
	return nil
}

// InsertMany stores accounts created outside the ledger in one transaction.
func (s *PostgresStore) InsertMany(ctx context.Context, accounts []Account) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		db := tx.(*PostgresStore).db
		for _, a := range accounts {
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err := db.Exec(ctx, `INSERT INTO bank_accounts (id, branch, number, owner_name, balance, promoted_from)
        VALUES ($1, $2, $3, $4, $5::numeric, $6)`, id, a.Branch, a.Number, a.Name, a.Balance.String(), a.PromotedFrom)
			if err != nil {
				return translatePgError("insert account", err)
			}
		}
		return nil
	})
}

// FindOne returns the first account matching filter.
func (s *PostgresStore) FindOne(ctx context.Context, filter Filter) (Account, error) {
	q := newPgQuery()
	where := q.where(filter)
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts`+where+` ORDER BY branch, number LIMIT 1`, q.args...)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, translatePgError("find account", err)
	}
	return a, nil
}

// FindMany lists accounts matching filter.
func (s *PostgresStore) FindMany(ctx context.Context, filter Filter, opts FindOptions) ([]Account, error) {
	q := newPgQuery()
	sql := `SELECT ` + accountColumns + ` FROM bank_accounts` + q.where(filter) + orderBy(opts.Sort)
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	rows, err := s.db.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, translatePgError("find accounts", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, translatePgError("scan account", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError("find accounts", err)
	}
	return out, nil
}

// UpdateOne locks the first matching row and applies update to it. The row
// lock makes Postgres re-check the filter against the latest row version, so
// a MinBalance predicate holds at write time.
func (s *PostgresStore) UpdateOne(ctx context.Context, filter Filter, update Update) (Account, error) {
	q := newPgQuery()
	delta := q.arg(update.BalanceDelta.String())
	branch := q.arg(update.Branch)
	promotedFrom := q.arg(update.PromotedFrom)
	where := q.where(filter)

	sql := `UPDATE bank_accounts SET
        balance = balance + ` + delta + `::numeric,
        branch = COALESCE(` + branch + `::integer, branch),
        promoted_from = COALESCE(` + promotedFrom + `::integer, promoted_from)
        WHERE id = (SELECT id FROM bank_accounts` + where + ` ORDER BY branch, number LIMIT 1 FOR UPDATE)
        RETURNING ` + accountColumns

	a, err := scanAccount(s.db.QueryRow(ctx, sql, q.args...))
	if err != nil {
		return Account{}, translatePgError("update account", err)
	}
	return a, nil
}

// DeleteOne removes the first matching account and returns it.
func (s *PostgresStore) DeleteOne(ctx context.Context, filter Filter) (Account, error) {
	q := newPgQuery()
	where := q.where(filter)
	sql := `DELETE FROM bank_accounts
        WHERE id = (SELECT id FROM bank_accounts` + where + ` ORDER BY branch, number LIMIT 1 FOR UPDATE)
        RETURNING ` + accountColumns
	a, err := scanAccount(s.db.QueryRow(ctx, sql, q.args...))
	if err != nil {
		return Account{}, translatePgError("delete account", err)
	}
	return a, nil
}

// WithinTx runs fn inside a single database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, nested := s.db.(pgx.Tx); nested {
		return fn(ctx, s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError("commit transaction", err)
	}
	return nil
}

type pgQuery struct {
	args []any
}

func newPgQuery() *pgQuery { return &pgQuery{} }

func (q *pgQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *pgQuery) where(f Filter) string {
	var conds []string
	if f.Branch != nil {
		conds = append(conds, "branch = "+q.arg(*f.Branch))
	}
	if f.Number != nil {
		conds = append(conds, "number = "+q.arg(*f.Number))
	}
	if f.ExcludeBranch != nil {
		conds = append(conds, "branch <> "+q.arg(*f.ExcludeBranch))
	}
	if f.MinBalance != nil {
		conds = append(conds, "balance >= "+q.arg(f.MinBalance.String())+"::numeric")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func orderBy(keys []SortKey) string {
	parts := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		col, ok := sortColumns[k.Field]
		if !ok {
			continue
		}
		if k.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	parts = append(parts, "branch", "number")
	return " ORDER BY " + strings.Join(parts, ", ")
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id           uuid.UUID
		balance      string
		promotedFrom *int32
		a            Account
	)
	if err := row.Scan(&id, &a.Branch, &a.Number, &a.Name, &balance, &promotedFrom); err != nil {
		return Account{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	a.ID = id.String()
	a.Balance = amount
	if promotedFrom != nil {
		from := int(*promotedFrom)
		a.PromotedFrom = &from
	}
	return a, nil
}

func translatePgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w", op, ErrNegativeBalance)
		case pgNumericRange:
			return fmt.Errorf("%s: %w", op, ErrInvalidValue)
		}
	}
	return unavailable(op, err)
}
