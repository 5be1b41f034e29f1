package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/branch_ledger/internal/ledger"
)

// Handler exposes report endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a report handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Account returns the account at :agency/:account.
func (h *Handler) Account(c *fiber.Ctx) error {
	branch, err := intParam(c, "agency")
	if err != nil {
		return err
	}
	number, err := intParam(c, "account")
	if err != nil {
		return err
	}
	a, err := h.service.Get(c.UserContext(), branch, number)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(a)
}

// Accounts lists every account ordered by balance in the :sort direction.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext(), c.Params("sort"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(accounts)
}

// AverageBalance reports the mean balance of :agency.
func (h *Handler) AverageBalance(c *fiber.Ctx) error {
	branch, err := intParam(c, "agency")
	if err != nil {
		return err
	}
	avg, err := h.service.AverageBalance(c.UserContext(), branch)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(avg)
}

// Poorest lists the :limit accounts with the lowest balance.
func (h *Handler) Poorest(c *fiber.Ctx) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	accounts, err := h.service.Poorest(c.UserContext(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(accounts)
}

// Richest lists the :limit accounts with the highest balance.
func (h *Handler) Richest(c *fiber.Ctx) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	accounts, err := h.service.Richest(c.UserContext(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(accounts)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrBranchEmpty):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrInvalidOrder):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return ledger.HTTPError(err)
	}
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	v, err := strconv.Atoi(c.Params(name))
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+name+": "+c.Params(name))
	}
	return v, nil
}
