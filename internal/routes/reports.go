package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/branch_ledger/internal/reports"
)

// RegisterReportRoutes wires read-only account queries.
func RegisterReportRoutes(r fiber.Router, h *reports.Handler) {
	r.Get("/account/:agency/:account", h.Account)
	r.Get("/accounts/:sort", h.Accounts)
	r.Get("/average-balance/:agency", h.AverageBalance)
	r.Get("/poorest-accounts/:limit", h.Poorest)
	r.Get("/richest-accounts/:limit", h.Richest)
}
