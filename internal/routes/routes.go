package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/branch_ledger/internal/config"
	"github.com/congo-pay/branch_ledger/internal/infra"
	"github.com/congo-pay/branch_ledger/internal/ledger"
	"github.com/congo-pay/branch_ledger/internal/lock"
	"github.com/congo-pay/branch_ledger/internal/middleware"
	"github.com/congo-pay/branch_ledger/internal/notification"
	"github.com/congo-pay/branch_ledger/internal/reports"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Store  *infra.Store
	Cache  *redis.Client
	Locker lock.Locker
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return errors.New("account store is required")
	}
	// Enforce Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	notifier := notification.NewLoggerNotifier(d.Logger)
	ledgerSvc := ledger.NewService(d.Store.Accounts, d.Locker, d.Logger,
		ledger.WithStoreTimeout(d.Cfg.StoreTimeout),
		ledger.WithNotifier(notifier),
	)
	reportSvc := reports.NewService(d.Store.Accounts, d.Cfg.StoreTimeout)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterLedgerRoutes(api, ledger.NewHandler(ledgerSvc))
	RegisterReportRoutes(api, reports.NewHandler(reportSvc))

	return nil
}

// ErrorHandler renders handler errors as {"error": "..."}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
