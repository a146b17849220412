package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/sigledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
}

type emailRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

type walletResponse struct {
	Address           string  `json:"address"`
	Balance           string  `json:"balance"`
	BalanceMinorUnits string  `json:"balanceMinorUnits"`
	Email             *string `json:"email,omitempty"`
}

func toResponse(w Wallet, withEmail bool) walletResponse {
	resp := walletResponse{
		Address:           w.Address,
		Balance:           w.Balance,
		BalanceMinorUnits: w.BalanceMinorUnits.String(),
	}
	if withEmail {
		email := w.Email
		resp.Email = &email
	}
	return resp
}

// Init creates the account if it does not exist yet.
func (h *Handler) Init(c *fiber.Ctx) error {
	var req initRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	w, created, err := h.service.Init(c.UserContext(), req.Address, req.Email)
	if err != nil {
		return toFiberError(err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(toResponse(w, false))
}

// Get returns the account balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("address"))
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(toResponse(w, true))
}

// SetEmail updates the notification address.
func (h *Handler) SetEmail(c *fiber.Ctx) error {
	var req emailRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	w, err := h.service.SetEmail(c.UserContext(), c.Params("address"), req.Email)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(fiber.Map{"email": w.Email})
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidEmail):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, ErrStoreUnavailable.Error())
	}
}
