package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/sigledger/internal/transfer"
)

// RegisterTransferRoutes wires the approve/execute protocol and history.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, approveLimiter fiber.Handler) {
	r.Post("/transfer/approve", approveLimiter, h.Approve)
	r.Post("/transfer/execute", h.Execute)
	r.Get("/transactions/:address", h.History)
}
