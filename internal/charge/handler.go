package charge

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/charge_auth/internal/ledger"
	"github.com/congo-pay/charge_auth/internal/middleware"
)

const (
	defaultAccount       = "account"
	defaultCharge  int64 = 10
)

// Handler exposes the charge protocol over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a charge HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type resetRequest struct {
	Account string `json:"account"`
}

type chargeRequest struct {
	Account string `json:"account"`
	Charges *int64 `json:"charges"`
}

// Reset restores an account to the default opening balance.
func (h *Handler) Reset(c *fiber.Ctx) error {
	var req resetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Account == "" {
		req.Account = defaultAccount
	}
	c.Locals(middleware.AccountLocal, req.Account)

	if err := h.service.Reset(c.UserContext(), req.Account); err != nil {
		return httpError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Charge attempts to debit the requested amount. Declines are still 200s.
func (h *Handler) Charge(c *fiber.Ctx) error {
	var req chargeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Account == "" {
		req.Account = defaultAccount
	}
	amount := defaultCharge
	if req.Charges != nil {
		amount = *req.Charges
	}
	c.Locals(middleware.AccountLocal, req.Account)

	res, err := h.service.Charge(c.UserContext(), req.Account, amount)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Balance returns the current balance for the account in the path.
func (h *Handler) Balance(c *fiber.Ctx) error {
	account := c.Params("account")
	balance, err := h.service.Balance(c.UserContext(), account)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account": account,
		"balance": balance,
	})
}

// History lists recent charge attempts for the account in the path.
func (h *Handler) History(c *fiber.Ctx) error {
	account := c.Params("account")
	entries, err := h.service.History(c.UserContext(), account, c.QueryInt("limit"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account": account,
		"charges": entries,
	})
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAccount), errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
