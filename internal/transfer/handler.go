package transfer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/middleware"
	"github.com/congo-pay/sigledger/internal/units"
)

// Handler exposes the transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type approveRequest struct {
	From   string      `json:"from" validate:"required,eth_addr"`
	To     string      `json:"to" validate:"required,eth_addr,nefield=From"`
	Amount json.Number `json:"amount" validate:"required"`
	Mode   string      `json:"currencyMode" validate:"omitempty,oneof=native fiat"`
}

type executeRequest struct {
	From           string      `json:"from" validate:"required,eth_addr"`
	To             string      `json:"to" validate:"required,eth_addr"`
	Amount         json.Number `json:"amount"`
	Signature      string      `json:"signature" validate:"required"`
	Message        string      `json:"message" validate:"required"`
	Mode           string      `json:"currencyMode" validate:"omitempty,oneof=native fiat"`
	QuoteReference string      `json:"quoteReference" validate:"omitempty,max=256"`
	FiatAmount     json.Number `json:"fiatAmount"`
}

// RecordView is the wire form of a transfer record.
type RecordView struct {
	ID               string    `json:"id"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Amount           string    `json:"amount"`
	AmountMinorUnits string    `json:"amountMinorUnits"`
	FiatAmount       *string   `json:"fiatAmount"`
	Signature        string    `json:"signature"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewRecordView converts a ledger record for responses.
func NewRecordView(rec ledger.TransferRecord) RecordView {
	view := RecordView{
		ID:               rec.ID,
		From:             rec.From,
		To:               rec.To,
		Amount:           rec.DisplayAmount,
		AmountMinorUnits: rec.AmountMinorUnits.String(),
		Signature:        rec.Signature,
		Timestamp:        rec.Timestamp,
	}
	if rec.FiatAmount != "" {
		fiat := rec.FiatAmount
		view.FiatAmount = &fiat
	}
	return view
}

// Approve builds the message the sender signs.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	approval, err := h.service.Approve(c.UserContext(), ApproveInput{
		From:   req.From,
		To:     req.To,
		Amount: req.Amount.String(),
		Mode:   req.Mode,
	})
	if err != nil {
		return toFiberError(err)
	}

	resp := fiber.Map{
		"message":          approval.Message,
		"expiresAt":        approval.ExpiresAt.UnixMilli(),
		"amount":           approval.Amount,
		"amountMinorUnits": approval.AmountMinorUnits.String(),
		"nonce":            approval.Nonce,
	}
	if approval.FiatAmount != "" {
		resp["fiatAmount"] = approval.FiatAmount
		resp["quoteReference"] = approval.QuoteReference
	}
	return c.JSON(resp)
}

// Execute settles a signed transfer.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Execute(c.UserContext(), ExecuteInput{
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount.String(),
		Signature:      req.Signature,
		Message:        req.Message,
		Mode:           req.Mode,
		QuoteReference: req.QuoteReference,
		FiatAmount:     req.FiatAmount.String(),
	})
	if err != nil {
		return toFiberError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":              true,
		"transaction":          NewRecordView(res.Record),
		"newBalance":           units.FromMinor(res.FromBalance, units.NativeDecimals),
		"newBalanceMinorUnits": res.FromBalance.String(),
	})
}

// History lists an address's transfers, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	records, err := h.service.History(c.UserContext(), c.Params("address"))
	if err != nil {
		return toFiberError(err)
	}
	out := make([]RecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, NewRecordView(rec))
	}
	return c.JSON(out)
}

func toFiberError(err error) error {
	return fiber.NewError(StatusCode(err), PublicMessage(err))
}
