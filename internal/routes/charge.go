package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/charge_auth/internal/charge"
)

// RegisterChargeRoutes wires the reset/charge endpoints and read-only account views.
func RegisterChargeRoutes(r fiber.Router, h *charge.Handler, rateLimiter fiber.Handler) {
	r.Post("/reset", h.Reset)
	if rateLimiter != nil {
		r.Post("/charge", rateLimiter, h.Charge)
	} else {
		r.Post("/charge", h.Charge)
	}

	accounts := r.Group("/accounts/:account")
	accounts.Get("/balance", h.Balance)
	accounts.Get("/charges", h.History)
}
