package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/config"
	"github.com/congo-pay/branch_ledger/internal/infra"
	"github.com/congo-pay/branch_ledger/internal/logging"
)

func newTestApp(t *testing.T, cache *redis.Client) *fiber.App {
	t.Helper()
	ctx := context.Background()
	cfg := config.Config{
		AppEnv:         "test",
		StoreBackend:   config.BackendMemory,
		StoreTimeout:   time.Second,
		IdempotencyTTL: time.Minute,
	}
	store, err := infra.OpenStore(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.Accounts.(account.Seeder).InsertMany(ctx, []account.Account{
		{Branch: 10, Number: 1001, Name: "Maria", Balance: decimal.NewFromInt(50)},
		{Branch: 25, Number: 2001, Name: "Joao", Balance: decimal.NewFromInt(0)},
	}))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Store: store, Cache: cache, Logger: logging.Discard()}))
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded), string(body))
	return resp.StatusCode, decoded
}

func TestLedgerFlow(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, fiber.MethodPut, "/api/v1/transfer/1001/2001/40", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "8", body["fee"])

	status, body = do(t, app, fiber.MethodGet, "/api/v1/account/10/1001", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2", body["balance"])

	status, body = do(t, app, fiber.MethodPut, "/api/v1/withdrawal/10/1001/2", nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient funds", body["error"])

	status, body = do(t, app, fiber.MethodDelete, "/api/v1/account/25/2001", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["remaining_in_branch"])

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/average-balance/25", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestIdempotentDepositReplays(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	app := newTestApp(t, cache)

	headers := map[string]string{"Idempotency-Key": "dep-1"}
	_, first := do(t, app, fiber.MethodPut, "/api/v1/deposit/10/1001/5", headers)
	_, second := do(t, app, fiber.MethodPut, "/api/v1/deposit/10/1001/5", headers)
	assert.Equal(t, first, second)

	_, current := do(t, app, fiber.MethodGet, "/api/v1/account/10/1001", nil)
	assert.Equal(t, "55", current["balance"])
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, fiber.MethodGet, "/healthz", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, map[string]any{"memory": "ok", "redis": "disabled"}, body["status"])

	status, body = do(t, app, fiber.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["request_id"])
}
