package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/branch_ledger/internal/ledger"
)

// RegisterLedgerRoutes wires balance mutation endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Put("/deposit/:agency/:account/:value", h.Deposit)
	r.Put("/withdrawal/:agency/:account/:value", h.Withdraw)
	r.Put("/transfer/:accountOrig/:accountDest/:value", h.Transfer)
	r.Put("/private", h.Promote)
	r.Delete("/account/:agency/:account", h.Delete)
}
