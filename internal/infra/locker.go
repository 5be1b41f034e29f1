package infra

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/branch_ledger/internal/config"
	"github.com/congo-pay/branch_ledger/internal/lock"
)

// NewLocker returns a redsync-backed locker when a Redis client is available
// and an in-process locker otherwise.
func NewLocker(cache *redis.Client, cfg config.Config, logger *slog.Logger) lock.Locker {
	if cache == nil {
		logger.Warn("redis not configured, account locks are process-local")
		return lock.NewLocalLocker()
	}
	opts := lock.DefaultRedisOptions()
	opts.Prefix = "lock:" + cfg.AppName + ":"
	opts.Expiry = cfg.LockExpiry
	return lock.NewRedisLocker(cache, opts, logger)
}
