package infra

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/config"
	"github.com/congo-pay/branch_ledger/internal/logging"
)

// Store is an opened account store together with the connection behind it.
type Store struct {
	Accounts account.Store
	Backend  string

	ping  func(ctx context.Context) error
	close func()
}

// OpenStore connects the backend selected by cfg.StoreBackend and wraps it in
// a circuit breaker. The memory backend starts from cfg.SeedFile when set.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{Backend: cfg.StoreBackend}
	var inner account.Store

	switch cfg.StoreBackend {
	case config.BackendMemory:
		var seed []account.Account
		if cfg.SeedFile != "" {
			var err error
			if seed, err = account.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		mem, err := account.NewMemoryStore(seed...)
		if err != nil {
			return nil, err
		}
		inner = mem
		logger.Info("memory account store ready",
			slog.String("seed_file", cfg.SeedFile),
			slog.Int("accounts", len(seed)),
		)
	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = account.NewPostgresStore(pool)
		s.ping = pool.Ping
		s.close = pool.Close
	case config.BackendMongo:
		client, err := NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		if cfg.MongoTransactions {
			inner = account.NewMongoTxStore(client, coll)
		} else {
			inner = account.NewMongoStore(coll)
		}
		s.ping = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
		s.close = func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("disconnect mongodb", slog.Any("error", err))
			}
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	s.Accounts = account.NewBreakerStore(inner, account.BreakerSettings{
		Name:                "account-store-" + cfg.StoreBackend,
		ConsecutiveFailures: cfg.BreakerFailures,
		Cooldown:            cfg.BreakerCooldown,
		HalfOpenRequests:    1,
	}, logger)
	return s, nil
}

// Migrate prepares the backend schema or indexes when the store supports it.
func (s *Store) Migrate(ctx context.Context) error {
	m, ok := s.Accounts.(account.Migrator)
	if !ok {
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s store: %w", s.Backend, err)
	}
	return nil
}

// Ping checks backend connectivity. The in-memory store is always reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend connection.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
