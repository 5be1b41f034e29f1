package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/branch_ledger/internal/logging"
)

// RedisOptions configures the distributed locker.
type RedisOptions struct {
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultRedisOptions suits ledger operations that finish well under a second.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:     "lock:",
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker implements Locker with redsync mutexes.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *slog.Logger
}

// NewRedisLocker builds a distributed locker on top of client. A nil logger
// discards release failures.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = logging.Discard()
	}
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock acquires one redsync mutex per key, runs fn and releases them in
// reverse order.
func (l *RedisLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalize(keys)
	held := make([]*redsync.Mutex, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			// Release even when ctx is already done.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if ok, err := held[i].UnlockContext(unlockCtx); !ok || err != nil {
				l.logger.Warn("release lock failed",
					slog.String("key", held[i].Name()),
					slog.Bool("unlock_ok", ok),
					slog.Any("error", err),
				)
			}
			cancel()
		}
	}()

	for _, k := range keys {
		m := l.rs.NewMutex(l.opts.Prefix+k,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, k, err)
		}
		held = append(held, m)
	}
	return fn(ctx)
}
