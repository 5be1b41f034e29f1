package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/branch_ledger/internal/account"
)

// Handler exposes ledger mutations over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferResponse struct {
	Source      account.Account `json:"source"`
	Destination account.Account `json:"destination"`
	Fee         decimal.Decimal `json:"fee"`
}

type deleteResponse struct {
	Deleted           account.Account `json:"deleted"`
	RemainingInBranch int             `json:"remaining_in_branch"`
}

// Deposit credits the account at :agency/:account with :value.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	branch, number, err := accountParams(c)
	if err != nil {
		return err
	}
	amount, err := amountParam(c)
	if err != nil {
		return err
	}
	a, err := h.service.Deposit(c.UserContext(), branch, number, amount)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(a)
}

// Withdraw debits :value plus the withdrawal fee.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	branch, number, err := accountParams(c)
	if err != nil {
		return err
	}
	amount, err := amountParam(c)
	if err != nil {
		return err
	}
	a, err := h.service.Withdraw(c.UserContext(), branch, number, amount)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(a)
}

// Transfer moves :value from :accountOrig to :accountDest. The optional
// from_agency and to_agency query parameters disambiguate account numbers.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	from, err := refParam(c, "accountOrig", "from_agency")
	if err != nil {
		return err
	}
	to, err := refParam(c, "accountDest", "to_agency")
	if err != nil {
		return err
	}
	amount, err := amountParam(c)
	if err != nil {
		return err
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{From: from, To: to, Amount: amount})
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(transferResponse{
		Source:      res.Source,
		Destination: res.Destination,
		Fee:         res.Fee,
	})
}

// Promote moves each branch's top account to the private branch.
func (h *Handler) Promote(c *fiber.Ctx) error {
	private, err := h.service.PromoteToPrivate(c.UserContext())
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(private)
}

// Delete removes the account at :agency/:account.
func (h *Handler) Delete(c *fiber.Ctx) error {
	branch, number, err := accountParams(c)
	if err != nil {
		return err
	}
	res, err := h.service.DeleteAccount(c.UserContext(), branch, number)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(deleteResponse{
		Deleted:           res.Account,
		RemainingInBranch: res.RemainingInBranch,
	})
}

// HTTPError translates ledger errors into fiber errors.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrSourceNotFound),
		errors.Is(err, ErrDestNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrSameAccount):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrAmbiguousAccount),
		errors.Is(err, account.ErrDuplicateKey):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func accountParams(c *fiber.Ctx) (branch, number int, err error) {
	if branch, err = intParam(c.Params("agency"), "agency"); err != nil {
		return 0, 0, err
	}
	if number, err = intParam(c.Params("account"), "account"); err != nil {
		return 0, 0, err
	}
	return branch, number, nil
}

func refParam(c *fiber.Ctx, numberKey, branchKey string) (AccountRef, error) {
	number, err := intParam(c.Params(numberKey), numberKey)
	if err != nil {
		return AccountRef{}, err
	}
	raw := c.Query(branchKey)
	if raw == "" {
		return NumberRef(number), nil
	}
	branch, err := intParam(raw, branchKey)
	if err != nil {
		return AccountRef{}, err
	}
	return Ref(branch, number), nil
}

func amountParam(c *fiber.Ctx) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(c.Params("value"))
	if err != nil {
		return decimal.Decimal{}, fiber.NewError(http.StatusBadRequest, "invalid value: "+c.Params("value"))
	}
	return amount, nil
}

func intParam(raw, name string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+name+": "+raw)
	}
	return v, nil
}
