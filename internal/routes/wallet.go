package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/sigledger/internal/wallet"
)

// RegisterWalletRoutes wires account endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallet/init", h.Init)
	r.Get("/wallet/:address", h.Get)
	r.Post("/wallet/:address/email", h.SetEmail)
}
