//go:build integration

package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.InsertMany(ctx, []Account{
		{Branch: 10, Number: 1001, Name: "Maria", Balance: dec("587")},
		{Branch: 10, Number: 1002, Name: "Ana", Balance: dec("587")},
		{Branch: 25, Number: 2001, Name: "Joao", Balance: dec("12.50")},
	}))
	return store
}

func TestIntegration_PostgresStore_CRUD(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	a, err := s.FindOne(ctx, Key(25, 2001))
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("12.5")))

	updated, err := s.UpdateOne(ctx, Key(25, 2001), Update{BalanceDelta: dec("7.5")})
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(dec("20")))

	_, err = s.UpdateOne(ctx, Key(25, 2001).WithMinBalance(dec("21")), Update{BalanceDelta: dec("-21")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateOne(ctx, Key(25, 2001), Update{BalanceDelta: dec("-21")})
	assert.ErrorIs(t, err, ErrNegativeBalance)

	richest, err := s.FindMany(ctx, Filter{}, FindOptions{
		Sort:  []SortKey{{Field: SortByBalance, Desc: true}, {Field: SortByName}},
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1002, 1001}, numbers(richest))

	deleted, err := s.DeleteOne(ctx, Key(10, 1002))
	require.NoError(t, err)
	assert.Equal(t, "Ana", deleted.Name)
	_, err = s.DeleteOne(ctx, Key(10, 1002))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntegration_PostgresStore_TransactionRollsBack(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.UpdateOne(ctx, Key(10, 1001), Update{BalanceDelta: dec("100")}); err != nil {
			return err
		}
		_, err := tx.UpdateOne(ctx, Key(99, 1), Update{BalanceDelta: dec("1")})
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)

	a, err := s.FindOne(ctx, Key(10, 1001))
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("587")))
}

func TestIntegration_PostgresStore_ConcurrentConditionalDebits(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateOne(ctx, Key(10, 1001).WithMinBalance(dec("100")), Update{BalanceDelta: dec("-100")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	a, err := s.FindOne(ctx, Key(10, 1001))
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("87")))
}
