package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "BranchLedger"
	defaultAppEnv           = "development"
	defaultPort             = "3000"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultMongoDatabase    = "bank"
	defaultMongoCollection  = "accounts"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultStoreTimeout     = 5 * time.Second
	defaultLockExpiry       = 10 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerCooldown  = 30 * time.Second
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	storeTimeoutEnvVar      = "STORE_TIMEOUT"
	lockExpiryEnvVar        = "LOCK_EXPIRY"
	breakerFailuresEnvVar   = "BREAKER_FAILURES"
	breakerCooldownEnvVar   = "BREAKER_COOLDOWN"
	mongoTransactionsEnvVar = "MONGODB_TRANSACTIONS"
	seedFileEnvVar          = "SEED_FILE"
	dbMaxConnsEnvVar        = "DATABASE_MAX_CONNS"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string
	AppEnv            string
	Port              string
	LogLevel          string
	LogFormat         string
	StoreBackend      string
	SeedFile          string
	DatabaseURL       string
	DatabaseMaxConns  int32
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string
	MongoTransactions bool
	RedisURL          string
	StoreTimeout      time.Duration
	ShutdownPeriod    time.Duration
	IdempotencyTTL    time.Duration
	LockExpiry        time.Duration
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		SeedFile:        os.Getenv(seedFileEnvVar),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", defaultMongoDatabase),
		MongoCollection: getEnv("MONGODB_COLLECTION", defaultMongoCollection),
		RedisURL:        os.Getenv("REDIS_URL"),
		StoreTimeout:    defaultStoreTimeout,
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		LockExpiry:      defaultLockExpiry,
		BreakerFailures: defaultBreakerFailures,
		BreakerCooldown: defaultBreakerCooldown,
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = duration(storeTimeoutEnvVar, cfg.StoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LockExpiry, err = duration(lockExpiryEnvVar, cfg.LockExpiry); err != nil {
		return Config{}, err
	}
	if cfg.BreakerCooldown, err = duration(breakerCooldownEnvVar, cfg.BreakerCooldown); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(breakerFailuresEnvVar); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", breakerFailuresEnvVar, err)
		}
		cfg.BreakerFailures = uint32(n)
	}

	if v := os.Getenv(dbMaxConnsEnvVar); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", dbMaxConnsEnvVar, v)
		}
		cfg.DatabaseMaxConns = int32(n)
	}

	if v := os.Getenv(mongoTransactionsEnvVar); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", mongoTransactionsEnvVar, err)
		}
		cfg.MongoTransactions = b
	}

	if cfg.StoreTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", storeTimeoutEnvVar)
	}
	// A lock that expires mid-operation no longer serializes anything.
	if cfg.LockExpiry <= cfg.StoreTimeout {
		return Config{}, fmt.Errorf("%s (%s) must exceed %s (%s)", lockExpiryEnvVar, cfg.LockExpiry, storeTimeoutEnvVar, cfg.StoreTimeout)
	}

	if cfg.SeedFile != "" && cfg.StoreBackend != BackendMemory {
		return Config{}, fmt.Errorf("%s is only read when STORE_BACKEND=%s; use ledgerctl seed for %s", seedFileEnvVar, BackendMemory, cfg.StoreBackend)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGODB_URI must be set when STORE_BACKEND=%s", BackendMongo)
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if !cfg.IsDev() && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the application runs in a local development mode.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
